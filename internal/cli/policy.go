package cli

import (
	"fmt"

	"github.com/reglet-dev/reglet-script/application/schema"
	"github.com/reglet-dev/reglet-script/application/validation"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func (a *app) newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for policy files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := schema.PolicySchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, string(data))
			return err
		},
	}
}

func (a *app) newValidatePolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-policy <file>",
		Short: "Check a policy file against the policy schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := afero.ReadFile(a.fs, args[0])
			if err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}
			v, err := validation.NewPolicyValidator()
			if err != nil {
				return err
			}
			result, err := v.Check(data)
			if err != nil {
				return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%s: %w", args[0], err)}
			}
			if result.Valid {
				fmt.Fprintf(a.stdout, "%s: valid\n", args[0])
				return nil
			}
			for _, e := range result.Errors {
				fmt.Fprintf(a.stdout, "%s: %s: %s\n", args[0], e.Field, e.Message)
			}
			return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%s: %d violation(s)", args[0], len(result.Errors))}
		},
	}
}
