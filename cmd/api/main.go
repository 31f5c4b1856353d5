// Command api serves the wallet ledger HTTP API and runs the deposit
// verification worker in the same process.
package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/wallet-ledger/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "wallet-ledger: %v\n", err)
		os.Exit(1)
	}
}
