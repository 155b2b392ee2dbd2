package scan

import (
	"fmt"
	"os"
	"strings"

	"github.com/scan-io-git/warden/pkg/shared/files"
)

const defaultSarifName = "warden.sarif"

// validateScanArgs checks the scan target and normalizes frame ids.
func validateScanArgs(o *RunOptions) error {
	if o.Path == "" {
		o.Path = "."
	}
	info, err := os.Stat(o.Path)
	if err != nil {
		return fmt.Errorf("path %q is not accessible: %w", o.Path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path %q is not a directory", o.Path)
	}

	frames := make([]string, 0, len(o.Frames))
	seen := make(map[string]bool, len(o.Frames))
	for _, f := range o.Frames {
		for _, id := range strings.Split(f, ",") {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			frames = append(frames, id)
		}
	}
	o.Frames = frames

	if o.Incremental && o.Base != "" {
		return fmt.Errorf("--incremental and --base are mutually exclusive")
	}
	if o.SarifOutput != "" {
		// a folder gets the default report name
		fullPath, _, err := files.DetermineFileFullPath(o.SarifOutput, defaultSarifName)
		if err != nil {
			return fmt.Errorf("--sarif: %w", err)
		}
		o.SarifOutput = fullPath
	}
	return nil
}
