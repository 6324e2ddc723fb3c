package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantryio/gantry/internal/adapters/file"
	"github.com/gantryio/gantry/internal/presentation/tui"
	"github.com/gantryio/gantry/pkg/domain"
)

var showCmd = &cobra.Command{
	Use:   "show <plan.yaml>",
	Short: "Render a plan file as a tree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runShow(args[0]); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(path string) error {
	tmpls, err := file.LoadPlan(path)
	if err != nil {
		return err
	}

	children := make(map[string][]*domain.Template)
	for _, tmpl := range tmpls {
		children[tmpl.ParentID] = append(children[tmpl.ParentID], tmpl)
	}

	root := tmpls[0]
	fmt.Println(tui.RenderMarkdown(fmt.Sprintf("# %s\n\n%s", root.Name, root.Description)))
	printSubtree(children, root.ID, 0)
	return nil
}

func printSubtree(children map[string][]*domain.Template, parentID string, depth int) {
	for _, tmpl := range children[parentID] {
		indent := strings.Repeat("  ", depth)
		var marks []string
		if tmpl.PredecessorID != "" {
			marks = append(marks, "after "+tmpl.PredecessorID)
		}
		if tmpl.Critical {
			marks = append(marks, "critical")
		}
		if tmpl.Mandatory {
			marks = append(marks, "mandatory")
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = " (" + strings.Join(marks, ", ") + ")"
		}
		fmt.Printf("%s- [%s] %s%s\n", indent, tmpl.Kind, tmpl.Name, suffix)
		printSubtree(children, tmpl.ID, depth+1)
	}
}
