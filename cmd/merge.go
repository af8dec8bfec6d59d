package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/SmartMerge/internal/core"
	"github.com/JonMunkholm/SmartMerge/internal/table"
	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
)

var (
	mergeFiles   []string
	mergeKeys    []string
	mergeColumns []string
	mergeOut     string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Run a whole merge chain headlessly",
	Long: `merge folds the given files into one table through successive left
joins, then writes the result as CSV or XLSX (chosen by the output
file's extension).

Files merge in the order given. Each --on pair keys one step: the first
pair joins file one and file two, every later pair joins the running
result with the next file. A pair is "primary=secondary", or a single
column name when both sides share it.

  smartmerge merge -f a.csv -f b.xlsx --on id=ref -o merged.csv
  smartmerge merge -f a.csv -f b.csv -f c.csv --on id --on id=emp_id`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMergeChain()
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringArrayVarP(&mergeFiles, "file", "f", nil, "input file, repeat in merge order (at least two)")
	mergeCmd.Flags().StringArrayVar(&mergeKeys, "on", nil, "key pair primary=secondary for each step, repeat per step")
	mergeCmd.Flags().StringSliceVar(&mergeColumns, "columns", nil, "columns to keep in the output (default all)")
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", core.DefaultExportName+".csv", "output path, .csv or .xlsx")
	mergeCmd.MarkFlagRequired("file")
	mergeCmd.MarkFlagRequired("on")
}

func runMergeChain() error {
	if len(mergeFiles) < 2 {
		return fmt.Errorf("need at least two --file inputs, got %d", len(mergeFiles))
	}
	if len(mergeKeys) != len(mergeFiles)-1 {
		return fmt.Errorf("need one --on pair per step: %d files take %d pairs, got %d",
			len(mergeFiles), len(mergeFiles)-1, len(mergeKeys))
	}

	steps := len(mergeFiles) - 1
	uiprogress.Start()
	bar := uiprogress.AddBar(steps).AppendCompleted().PrependElapsed()
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		return "Merging: "
	})

	base, err := loadInput(mergeFiles[0])
	if err != nil {
		uiprogress.Stop()
		return err
	}

	for i := 1; i < len(mergeFiles); i++ {
		secondary, err := loadInput(mergeFiles[i])
		if err != nil {
			uiprogress.Stop()
			return err
		}

		pk, sk := splitKeyPair(mergeKeys[i-1])
		merged, err := core.Merge(base, secondary, pk, sk)
		if err != nil {
			uiprogress.Stop()
			// Duplicate secondary keys are fatal in the interactive flow
			// too; headless runs just exit with the same message.
			return fmt.Errorf("merging %s: %w", mergeFiles[i], err)
		}

		base = merged
		bar.Incr()
	}
	uiprogress.Stop()

	if len(mergeColumns) > 0 {
		base, err = base.Select(mergeColumns)
		if err != nil {
			return err
		}
	}

	data, err := serializeOutput(base, mergeOut)
	if err != nil {
		return err
	}
	if err := os.WriteFile(mergeOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", mergeOut, err)
	}

	fmt.Printf("Wrote %s: %d rows, %d columns\n", mergeOut, base.NumRows(), base.NumCols())
	return nil
}

// loadInput reads, loads and cleans one input file, printing the cleaning
// messages the interactive flow would show.
func loadInput(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	t, err := core.Load(core.FileHandle{
		Name: filepath.Base(path),
		Size: int64(len(data)),
		Data: data,
	})
	if err != nil {
		return nil, err
	}

	cleaned, msgs := core.Clean(t, filepath.Base(path))
	for _, m := range msgs {
		fmt.Println(m.Text)
	}
	return cleaned, nil
}

// splitKeyPair parses "primary=secondary"; a bare name keys both sides.
func splitKeyPair(pair string) (string, string) {
	if pk, sk, ok := strings.Cut(pair, "="); ok {
		return strings.TrimSpace(pk), strings.TrimSpace(sk)
	}
	k := strings.TrimSpace(pair)
	return k, k
}

func serializeOutput(t *table.Table, out string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".xlsx":
		return core.ExportXLSX(t)
	case ".csv", "":
		return core.ExportCSV(t)
	default:
		return nil, fmt.Errorf("unsupported output extension %q, use .csv or .xlsx", filepath.Ext(out))
	}
}
