package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Toolchain names returned by Detect.
const (
	ToolchainNext    = "next"
	ToolchainVite    = "vite"
	ToolchainReact   = "react"
	ToolchainAngular = "angular"
	ToolchainStatic  = "static"
)

// Toolchain describes how to build a project and where its output lands.
type Toolchain struct {
	Name           string
	InstallCommand string
	BuildCommand   string
	OutputDir      string
}

// Manifest is the parsed package.json of a fetched source tree.
type Manifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

// HasDependency reports whether name is declared in either dependency group.
func (m *Manifest) HasDependency(name string) bool {
	if m == nil {
		return false
	}
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" {
		return false
	}
	for dep := range m.Dependencies {
		if strings.EqualFold(dep, target) {
			return true
		}
	}
	for dep := range m.DevDependencies {
		if strings.EqualFold(dep, target) {
			return true
		}
	}
	return false
}

// LoadManifest reads and parses package.json at the tree root.
func LoadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Detect picks a toolchain from the manifest and the tree layout. Rules are
// evaluated in fixed priority order and the first match wins; when nothing
// matches the generic static toolchain applies. Detect never fails.
func Detect(manifest *Manifest, dir string) Toolchain {
	switch {
	case manifest.HasDependency("next"):
		return toolchain(ToolchainNext, ".next")
	case manifest.HasDependency("vite"),
		fileExists(filepath.Join(dir, "vite.config.js")),
		fileExists(filepath.Join(dir, "vite.config.ts")):
		return toolchain(ToolchainVite, "dist")
	case manifest.HasDependency("react") && dirExists(filepath.Join(dir, "public")):
		return toolchain(ToolchainReact, "dist")
	case manifest.HasDependency("@angular/core") && fileExists(filepath.Join(dir, "angular.json")):
		return toolchain(ToolchainAngular, "dist")
	default:
		return toolchain(ToolchainStatic, "dist")
	}
}

func toolchain(name, outputDir string) Toolchain {
	return Toolchain{
		Name:           name,
		InstallCommand: "npm install",
		BuildCommand:   "npm run build",
		OutputDir:      outputDir,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
