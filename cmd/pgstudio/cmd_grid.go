package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/pgstudio/internal/client"
	"github.com/koustreak/pgstudio/internal/grid"
	"github.com/koustreak/pgstudio/internal/tables"
)

func newGridCmd() *cobra.Command {
	var (
		schema      string
		view        grid.View
		filters     string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "grid <table>",
		Short: "Browse and edit a table",
		Long: `Print one page of a table. With --interactive, read commands from stdin:

  next | prev | page <n> | size <n>    move between pages
  sort <column>                       cycle desc, asc, unsorted
  add <column>=<value> ...            insert a row
  set <id> <column> <value>           edit one cell
  select <id> ... | clear             choose rows
  delete                              delete the selected rows
  quit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := client.New(serverURL)
			ctl := grid.New(c)

			if err := ctl.Open(ctx, schema, args[0]); err != nil {
				return err
			}
			cols, err := c.Columns(ctx, schema, args[0])
			if err != nil {
				return err
			}
			order := make([]string, len(cols))
			for i, col := range cols {
				order[i] = col.Name
			}
			if filters != "" {
				var fs []tables.Filter
				dec := json.NewDecoder(strings.NewReader(filters))
				dec.UseNumber()
				if err := dec.Decode(&fs); err != nil {
					return fmt.Errorf("invalid --filters: %w", err)
				}
				if err := ctl.SetFilters(ctx, fs); err != nil {
					return err
				}
			}
			if view.Sort.Column == "" {
				view.Sort.Direction = grid.SortNone
			}
			if view != ctl.State().View {
				if err := ctl.SetView(ctx, view); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			printGrid(out, ctl.State(), order)
			if !interactive {
				return nil
			}
			return gridLoop(ctx, ctl, order, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&schema, "schema", tables.DefaultSchema, "schema of the table")
	cmd.Flags().IntVar(&view.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&view.PageSize, "page-size", tables.DefaultPageSize, "rows per page")
	cmd.Flags().StringVar(&view.Sort.Column, "sort", "", "sort column")
	cmd.Flags().StringVar(&view.Sort.Direction, "dir", grid.SortDesc, "sort direction (asc|desc)")
	cmd.Flags().StringVar(&filters, "filters", "", `JSON filter list, e.g. [{"column":"symbol","operator":"=","value":"MSFT"}]`)
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read grid commands from stdin")
	return cmd
}

func gridLoop(ctx context.Context, ctl *grid.Controller, order []string, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	confirm := func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		if !sc.Scan() {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(sc.Text()))
		return answer == "y" || answer == "yes"
	}

	fmt.Fprint(out, "> ")
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			fmt.Fprint(out, "> ")
			continue
		}
		if fields[0] == "quit" || fields[0] == "q" {
			return nil
		}
		if err := gridCommand(ctx, ctl, fields, confirm); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		printGrid(out, ctl.State(), order)
		ctl.DismissAll()
		fmt.Fprint(out, "> ")
	}
	return sc.Err()
}

// gridCommand runs one interactive command. confirm asks a yes/no question
// and reports whether the answer was yes.
func gridCommand(ctx context.Context, ctl *grid.Controller, f []string, confirm func(string) bool) error {
	st := ctl.State()
	switch f[0] {
	case "next", "n":
		if int64(st.View.Page) >= st.Pagination.PageCount {
			return fmt.Errorf("already on the last page")
		}
		return ctl.SetPage(ctx, st.View.Page+1)
	case "prev", "p":
		if st.View.Page <= 1 {
			return fmt.Errorf("already on the first page")
		}
		return ctl.SetPage(ctx, st.View.Page-1)
	case "page":
		n, err := intArg(f, 1)
		if err != nil {
			return err
		}
		return ctl.SetPage(ctx, n)
	case "size":
		n, err := intArg(f, 1)
		if err != nil {
			return err
		}
		return ctl.SetPageSize(ctx, n)
	case "sort":
		if len(f) < 2 {
			return fmt.Errorf("usage: sort <column>")
		}
		return ctl.ToggleSort(ctx, f[1])
	case "add":
		if !ctl.AddRow() {
			return fmt.Errorf("a new row is already being added")
		}
		for _, kv := range f[1:] {
			col, val, ok := strings.Cut(kv, "=")
			if !ok {
				ctl.CancelRow()
				return fmt.Errorf("expected column=value, got %q", kv)
			}
			if err := ctl.SetDraftValue(col, val); err != nil {
				ctl.CancelRow()
				return err
			}
		}
		_, err := ctl.SaveRow(ctx)
		return err
	case "set":
		if len(f) < 4 {
			return fmt.Errorf("usage: set <id> <column> <value>")
		}
		return ctl.EditCell(ctx, f[1], f[2], strings.Join(f[3:], " "))
	case "select":
		ids := make([]any, 0, len(f)-1)
		for _, id := range f[1:] {
			ids = append(ids, id)
		}
		ctl.Select(ids...)
		return nil
	case "clear":
		ctl.ClearSelection()
		return nil
	case "delete":
		if err := ctl.RequestDelete(); err != nil {
			return err
		}
		if !confirm(fmt.Sprintf("delete %d rows?", len(st.Selection))) {
			ctl.CancelDelete()
			return nil
		}
		_, err := ctl.ConfirmDelete(ctx)
		return err
	default:
		return fmt.Errorf("unknown command %q", f[0])
	}
}

func intArg(f []string, i int) (int, error) {
	if len(f) <= i {
		return 0, fmt.Errorf("usage: %s <n>", f[0])
	}
	n, err := strconv.Atoi(f[i])
	if err != nil {
		return 0, fmt.Errorf("%s expects a number, got %q", f[0], f[i])
	}
	return n, nil
}

// printGrid renders the current page. order lists the table's columns in
// catalog order; keys outside it are appended alphabetically.
func printGrid(w io.Writer, st grid.State, order []string) {
	if jsonOutput {
		_ = printJSON(w, st)
		return
	}
	if st.Error != "" {
		fmt.Fprintf(w, "%s.%s: %s\n", st.Schema, st.Table, st.Error)
		return
	}

	cols := columnsOf(order, st.Rows)
	if len(cols) > 0 {
		cells := make([][]string, 0, len(st.Rows))
		for _, row := range st.Rows {
			line := make([]string, len(cols))
			for i, c := range cols {
				line[i] = cellString(row[c])
			}
			cells = append(cells, line)
		}
		fmt.Fprintln(w, renderTable(cols, cells))
	}

	p := st.Pagination
	line := fmt.Sprintf("%s.%s  page %d of %d  (%d rows)", st.Schema, st.Table, p.Page, p.PageCount, p.Total)
	if st.View.Sort.Direction != grid.SortNone {
		line += fmt.Sprintf("  sorted by %s %s", st.View.Sort.Column, st.View.Sort.Direction)
	}
	if len(st.Selection) > 0 {
		line += fmt.Sprintf("  %d selected", len(st.Selection))
	}
	fmt.Fprintln(w, line)
	for _, n := range st.Notices {
		fmt.Fprintf(w, "! %s\n", n.Message)
	}
}

// columnsOf returns order followed by any other row keys. Without an order,
// "id" leads and the rest follow alphabetically.
func columnsOf(order []string, rows []map[string]any) []string {
	seen := make(map[string]bool, len(order))
	cols := make([]string, 0, len(order))
	for _, c := range order {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}

	var extra []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		if len(order) == 0 && (extra[i] == "id" || extra[j] == "id") {
			return extra[i] == "id"
		}
		return extra[i] < extra[j]
	})
	return append(cols, extra...)
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
