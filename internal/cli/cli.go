// Package cli implements the certctl commands on top of the certificate service.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"certstamp/internal/digest"
	"certstamp/internal/model"
	"certstamp/internal/service"
)

// ServiceFactory opens the certificate service for one command run.
// The returned close func releases whatever the service holds.
type ServiceFactory func(ctx context.Context) (service.CertificateService, func() error, error)

// NewRootCmd builds the certctl command tree.
func NewRootCmd(open ServiceFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "certctl",
		Short:         "Certificate stamping and verification",
		Long:          `Stamp PDFs with a QR code and SHA-256 hash, and verify issued hashes against the certificate log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(issueCmd(open))
	rootCmd.AddCommand(verifyCmd(open))
	rootCmd.AddCommand(listCmd(open))
	return rootCmd
}

func issueCmd(open ServiceFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue <file.pdf>",
		Short: "Stamp a PDF and record it in the certificate log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			in := args[0]
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = filepath.Join(filepath.Dir(in), "modified_"+filepath.Base(in))
			}

			f, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()

			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeFn()) }()

			res, err := svc.Issue(cmd.Context(), f, filepath.Base(in))
			if err != nil {
				return fmt.Errorf("issue: %w", err)
			}
			if err := os.WriteFile(out, res.Document, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Hash: %s\n", res.Digest)
			if res.Certificate != nil {
				fmt.Fprintf(w, "ID:   %s\n", res.Certificate.ID)
			}
			fmt.Fprintf(w, "Saved to: %s\n", out)
			if res.LogErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: certificate log not fully updated: %v\n", res.LogErr)
			}
			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "output path (default modified_<name> next to the input)")
	return cmd
}

func verifyCmd(open ServiceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <hash>",
		Short: "Look up a hash in the certificate log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			hash := digest.Normalize(args[0])
			if hash != "" && !digest.IsValid(hash) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q is not a %d-character hex digest\n", hash, digest.Size)
			}

			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeFn()) }()

			res, err := svc.Verify(cmd.Context(), hash)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			printVerify(cmd, res)
			return nil
		},
	}
}

func printVerify(cmd *cobra.Command, res *model.VerifyResult) {
	w := cmd.OutOrStdout()
	if !res.Found {
		fmt.Fprintln(w, "Certificate not found.")
		return
	}
	fmt.Fprintln(w, "Certificate is valid.")
	if res.Name != nil {
		fmt.Fprintf(w, "Name: %s\n", *res.Name)
	}
	if res.Date != nil {
		fmt.Fprintf(w, "Date: %s\n", *res.Date)
	}
}

func listCmd(open ServiceFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issued certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeFn()) }()

			res, err := svc.List(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tHASH\tDATE")
			for _, c := range res.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Digest, c.Date())
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d certificates\n", len(res.Items), res.Total)
			return nil
		},
	}

	cmd.Flags().Int("limit", 10, "page size")
	cmd.Flags().Int("offset", 0, "records to skip")
	return cmd
}
