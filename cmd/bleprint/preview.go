package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// previewCmd represents the preview command
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the CPCL program of a label without printing",
	Long: `Compose a label exactly as 'print' would and write the resulting CPCL
program to stdout. Nothing is sent over Bluetooth.`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

var (
	previewLabel  labelFlags
	previewBase64 bool
	previewCRLF   bool
)

func init() {
	previewLabel.register(previewCmd)
	previewCmd.Flags().BoolVar(&previewBase64, "base64", false, "Print the GB2312-encoded label as base64")
	previewCmd.Flags().BoolVar(&previewCRLF, "show-crlf", false, "Render line endings as \\r\\n")
}

func runPreview(cmd *cobra.Command, _ []string) error {
	label, err := previewLabel.build()
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	if previewBase64 {
		text, err := label.Base64()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		return nil
	}

	// encoding errors surface here even though the text form is printed
	if _, err := label.Buffer(); err != nil {
		return err
	}
	text := label.CPCLString()
	if previewCRLF {
		text = strings.ReplaceAll(text, "\r\n", "\\r\\n\n")
	} else {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	fmt.Fprint(out, text)
	return nil
}
