// Docredact writes randomly redacted copies of documents.
//
// Usage:
//
//	docredact redact report.docx              # copy next to the original
//	docredact redact --out-dir out *.md       # copies into out/
//	docredact redact --seed 42 --stdout a.txt # reproducible copy on stdout
//	docredact version
package main

import (
	"os"

	"github.com/dgallion1/docredact/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
