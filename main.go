// Package main provides the zedd binary entry point. Zedd deposits electron
// diffraction datasets to Zenodo, assembling the deposition metadata from
// CIF files, layered templates, and command-line flags.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zedd-project/zedd/cif"
	"github.com/zedd-project/zedd/config"
	"github.com/zedd-project/zedd/journal"
	"github.com/zedd-project/zedd/mapping"
	"github.com/zedd-project/zedd/metadata"
	"github.com/zedd-project/zedd/params"
	"github.com/zedd-project/zedd/upload"
	"github.com/zedd-project/zedd/validation"
	"github.com/zedd-project/zedd/zenodo"
)

const (
	Version = "1.0.0"
	appName = "zedd"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags shared by the upload and validate commands
type metadataFlags struct {
	metadataFile string
	title        string
	description  string
	creators     []string
	affiliation  string
	keywords     []string
	cifFiles     []string
}

func (f *metadataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.metadataFile, "metadata", "m", "", "Metadata template file (YAML or JSON)")
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Deposition title")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Deposition description")
	cmd.Flags().StringArrayVar(&f.creators, "creator", nil, "Creator name, 'Family, Given' (repeatable)")
	cmd.Flags().StringVar(&f.affiliation, "affiliation", "", "Affiliation applied to creators given with --creator")
	cmd.Flags().StringArrayVarP(&f.keywords, "keyword", "k", nil, "Keyword (repeatable)")
	cmd.Flags().StringArrayVar(&f.cifFiles, "cif", nil, "CIF file to extract parameters from (repeatable)")
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Deposit electron diffraction datasets to Zenodo",
		Long: `Zedd deposits electron diffraction datasets to Zenodo.

It assembles deposition metadata from experimental parameters extracted
from CIF files, layered metadata templates, and command-line flags, then
packs and uploads the dataset files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitFromUser(); err != nil {
				return err
			}
			if err := mapping.Init(); err != nil {
				return err
			}
			return mapping.MergeOverrides(config.Paths.MappingOverrides)
		},
	}

	cmd.AddCommand(uploadCmd())
	cmd.AddCommand(validateCmd())
	cmd.AddCommand(tokenCmd())
	cmd.AddCommand(historyCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func uploadCmd() *cobra.Command {
	var (
		flags     metadataFlags
		sandbox   bool
		directory string
		archive   bool
		checksum  bool
		publish   bool
		token     string
	)

	cmd := &cobra.Command{
		Use:   "upload [files...]",
		Short: "Upload a dataset as a new deposition",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := assembleMetadata(&flags)
			if err != nil {
				return err
			}

			target := "production"
			if sandbox || config.Deposit.Sandbox {
				sandbox = true
				target = "sandbox"
			}
			if token == "" {
				token, err = config.Token(target)
				if err != nil {
					return err
				}
			}

			if err := journal.Init(); err != nil {
				return err
			}
			defer journal.Finalize()

			client := zenodo.NewClient(token, sandbox)
			manager := upload.NewManager(client)
			err = manager.Begin(upload.Request{
				Document:        doc,
				Files:           args,
				Folder:          directory,
				Archive:         archive,
				VerifyChecksums: checksum,
				Publish:         publish || config.Deposit.Publish,
				Target:          target,
			})
			if err != nil {
				return err
			}

			for status := range manager.Status() {
				switch status.Stage {
				case upload.StageUploading:
					if status.Total > 0 {
						fmt.Printf("\r%s: %d/%d bytes", status.File, status.Sent, status.Total)
						if status.Sent == status.Total {
							fmt.Println()
						}
					}
				case upload.StageFailed:
					// the error comes back from Wait below
				default:
					fmt.Printf("%s...\n", status.Stage)
				}
			}

			result, err := manager.Wait()
			if err != nil {
				return err
			}
			fmt.Printf("Deposition %d created (%s).\n", result.Deposition.Id,
				result.Deposition.Links.HTML)
			if result.Deposition.DOI != "" {
				fmt.Printf("DOI: %s\n", result.Deposition.DOI)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "Deposit to the Zenodo sandbox")
	cmd.Flags().StringVar(&directory, "directory", "", "Pack this folder and deposit it as one archive")
	cmd.Flags().BoolVar(&archive, "archive", false, "Pack the given files into one archive")
	cmd.Flags().BoolVar(&checksum, "checksum", false, "Verify the repository's checksums after uploading")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish the deposition after uploading (irreversible)")
	cmd.Flags().StringVar(&token, "token", "", "Zenodo API token (defaults to the stored one)")
	return cmd
}

func validateCmd() *cobra.Command {
	var flags metadataFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check deposition metadata without uploading anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := assembleMetadata(&flags)
			if err != nil {
				return err
			}

			issues := validation.Validate(*doc)
			for _, issue := range issues {
				fmt.Println(issue)
			}
			if blocking := validation.Errors(issues); len(blocking) > 0 {
				return fmt.Errorf("%d problem(s) must be fixed before uploading", len(blocking))
			}
			fmt.Println("The metadata is ready to deposit.")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		sandbox bool
		remove  bool
	)

	cmd := &cobra.Command{
		Use:   "token [value]",
		Short: "Store a Zenodo API token for later uploads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "production"
			if sandbox {
				target = "sandbox"
			}
			if remove {
				return config.RemoveToken(target)
			}
			if len(args) == 0 {
				return fmt.Errorf("no token was given")
			}
			if err := config.SaveToken(target, args[0]); err != nil {
				return err
			}
			fmt.Printf("Stored the %s token.\n", target)
			return nil
		},
	}

	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "Store the token for the Zenodo sandbox")
	cmd.Flags().BoolVar(&remove, "remove", false, "Forget the stored token instead")
	return cmd
}

func historyCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deposition attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := journal.Init(); err != nil {
				return err
			}
			defer journal.Finalize()

			stop := time.Now()
			start := stop.AddDate(0, 0, -days)
			records, err := journal.Records(start, stop)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No deposition attempts were recorded in this period.")
				return nil
			}
			for _, record := range records {
				line := fmt.Sprintf("%s  %-10s %-9s %q (%d files, %d bytes)",
					record.StartTime.Format("2006-01-02 15:04"), record.Target,
					record.Status, record.Title, record.NumFiles, record.PayloadSize)
				if record.DOI != "" {
					line += fmt.Sprintf(" DOI: %s", record.DOI)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "How many days back to list")
	return cmd
}

// assembleMetadata merges the template layers (bundled defaults, the user's
// template, the run's template file, and finally the command-line flags) and
// attaches the parameter table extracted from any given CIF files.
func assembleMetadata(flags *metadataFlags) (*metadata.Document, error) {
	userLayer, err := metadata.LoadUserTemplate(config.Paths.UserTemplate)
	if err != nil {
		return nil, err
	}
	var runLayer *metadata.Document
	if flags.metadataFile != "" {
		runLayer, err = metadata.LoadTemplate(flags.metadataFile)
		if err != nil {
			return nil, err
		}
	}

	doc := metadata.Merge(metadata.BundledTemplate(), userLayer, runLayer)
	doc = metadata.Overlay(doc, flagLayer(flags))

	fragment, parameters, err := extractParameters(flags.cifFiles)
	if err != nil {
		return nil, err
	}
	doc.AttachExperimental(parameters, fragment)
	return &doc, nil
}

// builds the highest template layer from the command-line flags
func flagLayer(flags *metadataFlags) metadata.Document {
	layer := metadata.Document{
		Title:       flags.title,
		Description: flags.description,
	}
	if flags.keywords != nil {
		layer.Keywords = flags.keywords
	}
	if len(flags.creators) > 0 {
		for _, name := range flags.creators {
			layer.Creators = append(layer.Creators, metadata.Creator{
				Name:        name,
				Affiliation: flags.affiliation,
			})
		}
	}
	return layer
}

// parses the given CIF files and renders their parameter table, returning
// the HTML fragment and a flat name/value map of the extracted parameters
func extractParameters(paths []string) (string, map[string]string, error) {
	if len(paths) == 0 {
		return "", nil, nil
	}
	docs := make([]*cif.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := cif.ParseFile(path)
		if err != nil {
			return "", nil, err
		}
		docs = append(docs, doc)
	}

	table := params.Build(docs, nil)
	parameters := make(map[string]string)
	for _, row := range table.Rows() {
		// the first file providing a value wins
		for _, column := range table.Columns() {
			if value := row.Values[column.ID]; value != "" {
				parameters[row.DisplayName] = value
				break
			}
		}
	}
	return params.RenderHTML(table), parameters, nil
}
