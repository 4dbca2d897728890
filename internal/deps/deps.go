package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"scingest/internal/config"
)

// Requirement defines an external binary or file scingest relies on.
// Exactly one of Command or Path is checked; Command wins when both are set.
type Requirement struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		path := strings.TrimSpace(req.Path)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd != "":
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		case path != "":
			status.Command = path
			if info, err := os.Stat(path); err != nil {
				status.Detail = fmt.Sprintf("file %q not readable", path)
			} else if info.IsDir() {
				status.Detail = fmt.Sprintf("%q is a directory", path)
			} else {
				status.Available = true
			}
		default:
			status.Detail = "not configured"
		}
		results = append(results, status)
	}
	return results
}

// Requirements lists what cfg depends on outside the process.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	reqs := []Requirement{{
		Name:        "Metadata generator",
		Command:     cfg.Metadata.GeneratorCommand,
		Description: "Creates missing scan metadata files",
		Optional:    true,
	}}
	if cfg.Catalog.TokenFile != "" {
		reqs = append(reqs, Requirement{
			Name:        "Token file",
			Path:        cfg.Catalog.TokenFile,
			Description: "Pre-issued catalog access token",
		})
	} else {
		reqs = append(reqs, Requirement{
			Name:        "Credential file",
			Path:        cfg.Catalog.CredentialFile,
			Description: "Password for the catalog login",
		})
	}
	return reqs
}

// CheckConfig is CheckBinaries over Requirements(cfg).
func CheckConfig(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}

// Key turns a dependency name into a snake_case log key.
func Key(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
