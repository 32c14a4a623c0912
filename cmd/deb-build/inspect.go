package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/etnz/deb-builder/deb"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect PACKAGE",
	Short: "Print the control file, scripts and payload of a .deb",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		pkg, err := deb.ReadPackage(f)
		if err != nil {
			return err
		}
		return printPackage(cmd.OutOrStdout(), pkg)
	},
}

func printPackage(w io.Writer, pkg *deb.Package) error {
	fmt.Fprintln(w, "MEMBERS:")
	for _, m := range pkg.Members {
		fmt.Fprintln(w, "   ", m)
	}
	if len(pkg.Signature) > 0 {
		fmt.Fprintln(w, "    (signed)")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "CONTROL:")
	fmt.Fprint(w, pkg.Control)

	scripts := []struct {
		name, body string
	}{
		{"config", pkg.Scripts.Config},
		{"preinst", pkg.Scripts.PreInst},
		{"postinst", pkg.Scripts.PostInst},
		{"prerm", pkg.Scripts.PreRm},
		{"postrm", pkg.Scripts.PostRm},
	}
	for _, s := range scripts {
		if s.body == "" {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s:\n%s", s.name, s.body)
	}

	extra := make([]string, 0, len(pkg.ExtraControlFiles))
	for name := range pkg.ExtraControlFiles {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s:\n%s", name, pkg.ExtraControlFiles[name])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "FILES:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range pkg.Files {
		conf := ""
		if f.IsConf {
			conf = "conffile"
		}
		fmt.Fprintf(tw, "    %04o\t%d\t%s\t%s\n", f.Mode, len(f.Body), f.DestPath, conf)
	}
	for _, l := range pkg.Symlinks {
		fmt.Fprintf(tw, "    link\t\t%s -> %s\t\n", l.DestPath, l.Target)
	}
	return tw.Flush()
}
