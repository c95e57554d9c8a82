package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/giovannypietro/poi/pkg/keymaterial"
	"github.com/giovannypietro/poi/pkg/receipt"
	"github.com/giovannypietro/poi/pkg/token"
)

func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		receiptFile string
		privateKey  string
	)

	cmd.StringVar(&receiptFile, "receipt", "", "Receipt JSON file (REQUIRED)")
	cmd.StringVar(&privateKey, "private-key", "", "PEM private key file (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if receiptFile == "" || privateKey == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -receipt and -private-key are required")
		return 2
	}

	data, err := os.ReadFile(receiptFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read receipt: %v\n", err)
		return 2
	}
	r, err := receipt.ParseWire(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	material, err := (&keymaterial.FileProvider{PrivateKeyPath: privateKey}).Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	jwt, err := token.Export(r, material.Private)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintln(stdout, jwt)
	return 0
}
