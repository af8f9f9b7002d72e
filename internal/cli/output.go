package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/wangchj/inflight-sub000/internal/executor"
	"github.com/wangchj/inflight-sub000/internal/types"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
)

// formatOutput formats the result based on the output format
func formatOutput(result *types.RequestResult, format string, showFull bool) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return "", err
		}
		return string(data), nil

	case "body":
		return result.Response.Data, nil

	case "text":
		return formatText(result, showFull), nil

	default:
		return "", fmt.Errorf("unknown output format %q (json/yaml/text/body)", format)
	}
}

func formatText(result *types.RequestResult, showFull bool) string {
	var sb strings.Builder
	resp := result.Response

	status := fmt.Sprintf("%d %s", resp.StatusCode, resp.StatusMessage)
	sb.WriteString(statusStyle(resp.StatusCode).Render(status))
	sb.WriteString("\n")

	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%s %s | Duration: %s | Size: %s",
		result.RequestOptions.Method,
		result.RequestOptions.URL,
		executor.FormatDuration(result.Duration),
		executor.FormatSize(len(resp.Data)))))
	sb.WriteString("\n")

	if showFull {
		if resp.PeerCertificate != nil {
			sb.WriteString("\n")
			sb.WriteString(titleStyle.Render("TLS:"))
			sb.WriteString("\n")
			writeField(&sb, "subject", resp.PeerCertificate.Subject["CN"])
			writeField(&sb, "issuer", resp.PeerCertificate.Issuer["CN"])
			writeField(&sb, "valid", resp.PeerCertificate.ValidFrom+" - "+resp.PeerCertificate.ValidTo)
			if resp.Cipher != nil {
				writeField(&sb, "cipher", resp.Cipher.Name+" ("+resp.Cipher.Version+")")
			}
		}

		if len(resp.RawHeaders) > 0 {
			sb.WriteString("\n")
			sb.WriteString(titleStyle.Render("Headers:"))
			sb.WriteString("\n")
			for i := 0; i+1 < len(resp.RawHeaders); i += 2 {
				writeField(&sb, resp.RawHeaders[i], resp.RawHeaders[i+1])
			}
		} else if len(resp.Headers) > 0 {
			sb.WriteString("\n")
			sb.WriteString(titleStyle.Render("Headers:"))
			sb.WriteString("\n")
			keys := make([]string, 0, len(resp.Headers))
			for k := range resp.Headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				writeField(&sb, k, resp.Headers[k])
			}
		}
	}

	if resp.Data != "" {
		sb.WriteString("\n")
		if showFull {
			sb.WriteString(titleStyle.Render("Body:"))
			sb.WriteString("\n")
		}
		sb.WriteString(resp.Data)
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeField(sb *strings.Builder, key, value string) {
	sb.WriteString("  ")
	sb.WriteString(keyStyle.Render(key + ":"))
	sb.WriteString(" ")
	sb.WriteString(value)
	sb.WriteString("\n")
}

func statusStyle(status int) lipgloss.Style {
	switch {
	case executor.IsSuccessStatus(status):
		return successStyle
	case executor.IsClientErrorStatus(status), executor.IsServerErrorStatus(status):
		return errorStyle
	default:
		return warningStyle
	}
}
