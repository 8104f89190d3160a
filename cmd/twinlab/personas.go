package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPersonasCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "Inspect the persona corpus",
		RunE:  runPersonas,
	}
	addSelectionFlags(cmd)
	cmd.Flags().Bool("fields", false, "list attribute fields and their values instead of personas")
	return cmd
}

func runPersonas(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}

	if listFields, _ := cmd.Flags().GetBool("fields"); listFields {
		for _, field := range a.personas.Fields() {
			fmt.Printf("%s\n", bold(field))
			for _, value := range a.personas.FieldValues(field) {
				fmt.Printf("  %s\n", value)
			}
		}
		return nil
	}

	selected, err := a.personas.Select(selectionFromFlags(cmd))
	if err != nil {
		return err
	}

	fmt.Printf("%s %d of %d personas\n", bold("Selected"), len(selected), a.personas.Len())
	for _, p := range selected {
		fmt.Printf("\n%s\n%s\n", cyan(p.ID), p.Summary())
	}
	return nil
}
