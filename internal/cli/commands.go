package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wangchj/inflight-sub000/internal/executor"
	"github.com/wangchj/inflight-sub000/internal/parser"
	"github.com/wangchj/inflight-sub000/internal/project"
	"github.com/wangchj/inflight-sub000/internal/types"
)

// importDimension receives variants created from values lifted during import
const importDimension = "Imported"

// Vars prints the composed variable map. With missing set, it lists the
// variables that request cannot resolve instead.
func Vars(app *App, missing, format string, streams IO) error {
	if missing != "" {
		_, req, err := app.Session.FindRequest(missing)
		if err != nil {
			return err
		}
		names := parser.MissingVariables(req, app.Store.Snapshot())
		if len(names) == 0 {
			fmt.Fprintln(streams.Err, "All variables resolve")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(streams.Out, name)
		}
		return nil
	}

	vars := app.Store.Snapshot()
	switch format {
	case "json":
		data, err := json.MarshalIndent(vars, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(streams.Out, string(data))
	case "yaml":
		data, err := yaml.Marshal(map[string]string(vars))
		if err != nil {
			return err
		}
		fmt.Fprint(streams.Out, string(data))
	default:
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(streams.Out, "%s=%s\n", keyStyle.Render(name), vars[name])
		}
	}
	return nil
}

// Select stores a variant selection. An empty variant clears the dimension.
func Select(app *App, dimension, variant string, streams IO) error {
	if variant == "" {
		dimID, err := findDimension(app, dimension)
		if err != nil {
			return err
		}
		if err := app.Session.ClearVariant(dimID); err != nil {
			return err
		}
		fmt.Fprintf(streams.Err, "Cleared selection for %s\n", dimension)
		return nil
	}

	dimID, variantID, err := app.Session.ResolveSelection(dimension, variant)
	if err != nil {
		return err
	}
	if err := app.Session.SelectVariant(dimID, variantID); err != nil {
		return err
	}
	fmt.Fprintf(streams.Err, "Selected %s for %s (%d variables)\n", variant, dimension, len(app.Store.Snapshot()))
	return nil
}

func findDimension(app *App, dimension string) (string, error) {
	p := app.Session.Project()
	if _, ok := p.Dimensions[dimension]; ok {
		return dimension, nil
	}
	for id, dim := range p.Dimensions {
		if strings.EqualFold(dim.Name, dimension) {
			return id, nil
		}
	}
	return "", fmt.Errorf("dimension %q: %w", dimension, project.ErrNotFound)
}

// Tree prints folders, requests and dimensions. Selected variants are marked.
func Tree(app *App, streams IO) error {
	p := app.Session.Project()

	fmt.Fprintln(streams.Out, titleStyle.Render(p.Folders[p.Tree].Name))
	err := project.Walk(p, func(n project.Node) error {
		indent := strings.Repeat("  ", n.Depth+1)
		if n.Kind == types.ResourceFolder {
			fmt.Fprintf(streams.Out, "%s%s/\n", indent, titleStyle.Render(n.Name))
			return nil
		}
		req := p.Requests[n.ID]
		fmt.Fprintf(streams.Out, "%s%s %s %s\n", indent, keyStyle.Render(req.Method), n.Name, mutedStyle.Render(n.ID))
		return nil
	})
	if err != nil {
		return err
	}

	if len(p.DimOrder) == 0 {
		return nil
	}
	selection := app.Session.Selection()
	fmt.Fprintln(streams.Out)
	fmt.Fprintln(streams.Out, titleStyle.Render("Dimensions"))
	for _, dimID := range p.DimOrder {
		dim := p.Dimensions[dimID]
		selected, _ := selection.Get(dimID)
		fmt.Fprintf(streams.Out, "  %s\n", dim.Name)
		for _, variantID := range dim.Variants {
			marker := " "
			if variantID == selected {
				marker = successStyle.Render("*")
			}
			fmt.Fprintf(streams.Out, "   %s %s %s\n", marker, p.Variants[variantID].Name, mutedStyle.Render(fmt.Sprintf("(%d vars)", len(p.Variants[variantID].Vars))))
		}
	}
	return nil
}

// Import adds the requests of a request file to the project. folder names
// a folder under the root to create for them; empty imports into the root.
func Import(app *App, path, folder string, streams IO) error {
	imported, err := parser.Parse(path)
	if err != nil {
		return fmt.Errorf("failed to parse file: %w", err)
	}
	if len(imported.Requests) == 0 {
		return fmt.Errorf("no requests found in file: %s", path)
	}

	err = app.Session.Update(func(p *types.Project) error {
		target := p.Tree
		if folder != "" {
			id, err := project.AddFolder(p, p.Tree, folder)
			if err != nil {
				return err
			}
			target = id
		}
		for _, req := range imported.Requests {
			if _, err := project.AddRequest(p, target, req); err != nil {
				return err
			}
		}

		if len(imported.Vars) == 0 {
			return nil
		}
		dimID := ""
		for _, id := range p.DimOrder {
			if p.Dimensions[id].Name == importDimension {
				dimID = id
				break
			}
		}
		if dimID == "" {
			dimID = project.AddDimension(p, importDimension)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		_, err := project.AddVariant(p, dimID, name, imported.Vars)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(streams.Err, "Imported %d request(s) from %s\n", len(imported.Requests), path)
	if len(imported.Vars) > 0 {
		fmt.Fprintf(streams.Err, "Lifted %d variable(s) into the %s dimension\n", len(imported.Vars), importDimension)
	}
	return nil
}

// History prints recent sends, newest first
func History(app *App, limit int, clear bool, format string, streams IO) error {
	if clear {
		if err := app.History.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(streams.Err, "History cleared")
		return nil
	}

	entries, err := app.History.Load(limit)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(streams.Out, string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(entries)
		if err != nil {
			return err
		}
		fmt.Fprint(streams.Out, string(data))
		return nil
	}

	for _, e := range entries {
		status := errorStyle.Render("ERR")
		if e.Error == "" {
			status = statusStyle(e.ResponseStatus).Render(fmt.Sprintf("%d", e.ResponseStatus))
		}
		fmt.Fprintf(streams.Out, "%s %s %s %s %s\n",
			mutedStyle.Render(e.Timestamp),
			status,
			keyStyle.Render(e.Method),
			e.URL,
			mutedStyle.Render(executor.FormatDuration(e.Duration)))
		if e.Error != "" {
			fmt.Fprintf(streams.Out, "    %s\n", e.Error)
		}
	}
	return nil
}

// Stats prints per-request aggregates over recorded sends. query narrows
// the output to one stored request.
func Stats(app *App, query, format string, streams IO) error {
	requestID := ""
	if query != "" {
		id, _, err := app.Session.FindRequest(query)
		if err != nil {
			return err
		}
		requestID = id
	}

	stats, err := app.History.Stats(requestID)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(streams.Out, string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(stats)
		if err != nil {
			return err
		}
		fmt.Fprint(streams.Out, string(data))
		return nil
	}

	if len(stats) == 0 {
		fmt.Fprintln(streams.Err, "No sends recorded")
		return nil
	}

	var sb strings.Builder
	for _, s := range stats {
		name := s.RequestName
		if name == "" {
			name = s.RequestID
		}
		sb.WriteString(titleStyle.Render(name))
		sb.WriteString("\n")
		writeField(&sb, "Calls", fmt.Sprintf("%d (%d ok, %d error, %d failed)",
			s.TotalCalls, s.SuccessCount, s.ErrorCount, s.Failures))
		writeField(&sb, "Duration", fmt.Sprintf("avg %s, min %s, max %s",
			executor.FormatDuration(int64(s.AvgDurationMs)),
			executor.FormatDuration(s.MinDurationMs),
			executor.FormatDuration(s.MaxDurationMs)))

		codes := make([]int, 0, len(s.StatusCodes))
		for code := range s.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, statusStyle(code).Render(fmt.Sprintf("%d x%d", code, s.StatusCodes[code])))
		}
		if len(parts) > 0 {
			writeField(&sb, "Status", strings.Join(parts, " "))
		}
		writeField(&sb, "Last", s.LastCalled.Format(time.RFC3339))
	}
	fmt.Fprint(streams.Out, sb.String())
	return nil
}
