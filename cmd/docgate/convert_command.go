package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docgate/internal/fileutil"
	"docgate/internal/gateway"
	"docgate/internal/rpcapi"
)

type convertOptions struct {
	convertTo    string
	output       string
	filter       string
	importFilter string
	options      []string
	updateIndex  bool
	remote       bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Convert a document through the running gateway",
		Long: "Convert a document. Without --output the converted bytes are written to\n" +
			"stdout and --to is required. With --remote the input is uploaded and the\n" +
			"result is written locally, for gateways on another host.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, localOutput, err := buildConvertRequest(args[0], opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("update-index") {
				value := opts.updateIndex
				req.UpdateIndex = &value
			}

			return ctx.withClient(func(client *rpcapi.Client) error {
				resp, err := client.Convert(req)
				if err != nil {
					return describeFault(err)
				}
				if req.OutputPath != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s)\n", req.OutputPath, resp.ExportFilter)
					return nil
				}
				if localOutput != "" {
					if err := fileutil.WriteFileAtomic(localOutput, resp.Data, 0o644); err != nil {
						return fmt.Errorf("write output: %w", err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s)\n", localOutput, resp.ExportFilter)
					return nil
				}
				_, err = cmd.OutOrStdout().Write(resp.Data)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&opts.convertTo, "to", "t", "", "Target format extension, e.g. pdf")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output path (default: stdout)")
	cmd.Flags().StringVarP(&opts.filter, "filter", "f", "", "Export filter name or alias")
	cmd.Flags().StringVarP(&opts.importFilter, "import-filter", "i", "", "Import filter name or alias")
	cmd.Flags().StringArrayVarP(&opts.options, "option", "O", nil, "Export filter option name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.updateIndex, "update-index", true, "Refresh document indexes before export")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "Send the input bytes instead of a path")
	return cmd
}

// buildConvertRequest maps CLI arguments to a wire request. localOutput is
// set when the gateway returns bytes that the CLI must write itself.
func buildConvertRequest(input string, opts convertOptions) (rpcapi.ConvertRequest, string, error) {
	req := rpcapi.ConvertRequest{
		ConvertTo:        strings.TrimPrefix(strings.TrimSpace(opts.convertTo), "."),
		FilterName:       strings.TrimSpace(opts.filter),
		ImportFilterName: strings.TrimSpace(opts.importFilter),
		FilterOptions:    opts.options,
	}

	inputPath, err := filepath.Abs(input)
	if err != nil {
		return req, "", fmt.Errorf("resolve input: %w", err)
	}
	output := strings.TrimSpace(opts.output)
	if output != "" {
		if output, err = filepath.Abs(output); err != nil {
			return req, "", fmt.Errorf("resolve output: %w", err)
		}
	}

	if !opts.remote {
		req.InputPath = inputPath
		req.OutputPath = output
		if output == "" && req.ConvertTo == "" {
			return req, "", errors.New("--to is required when writing to stdout")
		}
		return req, "", nil
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return req, "", fmt.Errorf("read input: %w", err)
	}
	req.InputData = data
	if req.ConvertTo == "" {
		req.ConvertTo = strings.TrimPrefix(filepath.Ext(output), ".")
	}
	if req.ConvertTo == "" {
		return req, "", errors.New("--to is required when the output has no extension")
	}
	return req, output, nil
}

func describeFault(err error) error {
	var fault *gateway.Fault
	if !errors.As(err, &fault) {
		return err
	}
	return fmt.Errorf("%s: %s", titleLabel(fault.Code), fault.Message)
}
