// Command racerd runs a single RACER broadcast node, or one of its
// operator subcommands (key generation, config validation).
package main

import (
	"fmt"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("racerd", "RACER leaderless probabilistic broadcast node")

	runCmd          = app.Command("run", "Start a node and block until signalled to stop.")
	runConfigPath   = runCmd.Flag("config", "Path to the node's TOML configuration file.").Default("racer.toml").String()
	runNodeID       = runCmd.Flag("node-id", "Override node.id (also RACER_NODE_ID); run then replaces node.id with the key file's public key hex.").Envar("RACER_NODE_ID").String()
	runRouterBind   = runCmd.Flag("router-bind", "Override node.router_bind (also RACER_ROUTER_BIND).").Envar("RACER_ROUTER_BIND").String()
	runPublisher    = runCmd.Flag("publisher-bind", "Override node.publisher_bind (also RACER_PUBLISHER_BIND).").Envar("RACER_PUBLISHER_BIND").String()
	runKeyFile      = runCmd.Flag("key-file", "Path to the node's private key (hex, from racerd keygen).").Default("racer.key").String()
	runSelection    = runCmd.Flag("selection", "Peer-selection policy: normal, random, or poisson.").String()
	runDebug        = runCmd.Flag("debug", "Enable debug logging and a periodic PLATO status line.").Bool()

	keygenCmd    = app.Command("keygen", "Generate a fresh P-256 key pair.")
	keygenOut    = keygenCmd.Flag("output", "Where to write the private key (hex).").Default("racer.key").String()
	keygenPubOut = keygenCmd.Flag("pub-out", "Where to also write the public key (hex). Optional.").String()
	keygenForce  = keygenCmd.Flag("force", "Overwrite existing key files.").Bool()

	configCmd      = app.Command("config", "Configuration file operations.")
	configValidate = configCmd.Command("validate", "Load and validate a TOML configuration file.")
	configValidatePath = configValidate.Arg("path", "Path to the TOML configuration file.").Required().String()
)

func main() {
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case runCmd.FullCommand():
		if err := runNode(); err != nil {
			fmt.Fprintln(os.Stderr, "racerd run:", err)
			os.Exit(1)
		}
	case keygenCmd.FullCommand():
		if err := runKeygen(); err != nil {
			fmt.Fprintln(os.Stderr, "racerd keygen:", err)
			os.Exit(1)
		}
	case configValidate.FullCommand():
		if err := runConfigValidate(); err != nil {
			fmt.Fprintln(os.Stderr, "racerd config validate:", err)
			os.Exit(1)
		}
	}
}
