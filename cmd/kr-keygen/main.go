// Command kr-keygen generates a fresh ENCRYPT_KEY/ENCRYPT_NONCE pair
// for a rendezvous/agent deployment.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/urfave/cli"

	"github.com/kryptco/kr-tunnel/internal/cipherstream"
	"github.com/kryptco/kr-tunnel/internal/version"
)

func main() {
	app := cli.NewApp()
	app.Name = "kr-keygen"
	app.Usage = "generates a key/nonce pair for the tunnel control channel"
	app.Version = version.Current.String()
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "clipboard",
			Usage: "copy the generated ENCRYPT_KEY and ENCRYPT_NONCE export lines to the clipboard instead of printing them",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	key := make([]byte, cipherstream.KeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	nonce := make([]byte, cipherstream.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	keyLine := fmt.Sprintf("export ENCRYPT_KEY=%s", base64.StdEncoding.EncodeToString(key))
	nonceLine := fmt.Sprintf("export ENCRYPT_NONCE=%s", base64.StdEncoding.EncodeToString(nonce))

	if c.Bool("clipboard") {
		if err := clipboard.WriteAll(keyLine + "\n" + nonceLine); err != nil {
			return fmt.Errorf("copying to clipboard: %w", err)
		}
		fmt.Println("key and nonce copied to clipboard")
		return nil
	}

	fmt.Println(keyLine)
	fmt.Println(nonceLine)
	return nil
}
