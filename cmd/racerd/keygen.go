package main

import (
	"fmt"
	"os"

	"github.com/ten2mushi/racer/pkg/racer/crypto"
)

func runKeygen() error {
	if !*keygenForce {
		if _, err := os.Stat(*keygenOut); err == nil {
			return fmt.Errorf("%s already exists, pass --force to overwrite", *keygenOut)
		}
		if *keygenPubOut != "" {
			if _, err := os.Stat(*keygenPubOut); err == nil {
				return fmt.Errorf("%s already exists, pass --force to overwrite", *keygenPubOut)
			}
		}
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	privateHex := crypto.MarshalPrivateHex(kp)
	if err := os.WriteFile(*keygenOut, []byte(privateHex), 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	fmt.Printf("private key written to %s\n", *keygenOut)

	publicHex := kp.Public.Hex()
	if *keygenPubOut != "" {
		if err := os.WriteFile(*keygenPubOut, []byte(publicHex), 0644); err != nil {
			return fmt.Errorf("write public key: %w", err)
		}
		fmt.Printf("public key written to %s\n", *keygenPubOut)
	}

	fmt.Printf("public key (hex): %s\n", publicHex)
	return nil
}
