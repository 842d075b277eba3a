package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cloudx-io/bundleauction/validation"
)

func main() {
	var (
		receiptInput = flag.String("receipt", "", "Receipt document JSON (file path or inline JSON)")
		keyInput     = flag.String("key", "", "PEM verification key file (overrides the key embedded in the document)")
		bidder       = flag.String("bidder", "", "Bidder identity to check the outcome for")
		expect       = flag.String("expect", "", "Expected outcome for --bidder: win or loss")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *receiptInput == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --receipt is required\n")
		os.Exit(1)
	}
	if (*bidder == "") != (*expect == "") {
		fmt.Fprintf(os.Stderr, "Error: --bidder and --expect must be given together\n")
		os.Exit(1)
	}
	if *expect != "" && *expect != "win" && *expect != "loss" {
		fmt.Fprintf(os.Stderr, "Error: --expect must be win or loss, got %q\n", *expect)
		os.Exit(1)
	}

	data, err := readJSONInput(*receiptInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading receipt document: %v\n", err)
		os.Exit(2)
	}
	doc, err := validation.ParseReceiptDocument(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing receipt document: %v\n", err)
		os.Exit(2)
	}

	pemKey := doc.PublicKeyPEM
	if *keyInput != "" {
		keyBytes, err := os.ReadFile(*keyInput)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading key file: %v\n", err)
			os.Exit(2)
		}
		pemKey = string(keyBytes)
	}

	result, err := validation.ValidateSettlementReceipt(&validation.ReceiptValidationInput{
		COSEBase64:   doc.COSEBase64,
		PublicKeyPEM: pemKey,
		Plaintext:    doc.Receipt,
		Bidder:       *bidder,
		ExpectWinner: *expect == "win",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println()
	fmt.Println("Verifies a COSE-signed settlement receipt served by the auction daemon.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  receipt-validator --receipt <json> [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --receipt <json>     Receipt document (response body of GET /auction/receipt)")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --key <file>         PEM verification key obtained out of band; when set,")
	fmt.Println("                       the key embedded in the document is ignored")
	fmt.Println("  --bidder <identity>  Check the receipt's outcome for this bidder")
	fmt.Println("  --expect <win|loss>  Expected outcome for --bidder")
	fmt.Println("  --format <text|json> Output format (default: text)")
	fmt.Println("  --help               Show this help message")
	fmt.Println()
	fmt.Println("Input Format:")
	fmt.Println("  --receipt accepts either a file path or an inline JSON string:")
	fmt.Println("  {")
	fmt.Println("    \"receipt\": {\"auction\": \"...\", \"winners\": [...], ...},")
	fmt.Println("    \"cose_base64\": \"0oRDoQEm...\",")
	fmt.Println("    \"public_key_pem\": \"-----BEGIN PUBLIC KEY-----...\"")
	fmt.Println("  }")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Verify a saved receipt and check that alice won")
	fmt.Println("  receipt-validator --receipt receipt.json --bidder alice --expect win")
	fmt.Println()
	fmt.Println("  # Verify against a key pinned out of band")
	fmt.Println("  receipt-validator --receipt receipt.json --key auction.pem")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readJSONInput(input string) ([]byte, error) {
	// Try reading as file first
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	// Treat as inline JSON
	return []byte(input), nil
}

func outputJSON(result *validation.ReceiptValidationResult) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(out))
}

func outputText(result *validation.ReceiptValidationResult) {
	status := func(ok bool) string {
		if ok {
			return "PASS"
		}
		return "FAIL"
	}
	fmt.Println("Settlement Receipt Validation")
	fmt.Printf("  Signature:  %s\n", status(result.SignatureValid))
	fmt.Printf("  Allocation: %s\n", status(result.AllocationValid))
	fmt.Printf("  Plaintext:  %s\n", status(result.PlaintextMatch))
	fmt.Printf("  Outcome:    %s\n", status(result.OutcomeValid))
	fmt.Println()
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}
	fmt.Println()
	if result.IsValid() {
		fmt.Println("Result: VALID")
	} else {
		fmt.Println("Result: INVALID")
	}
}
