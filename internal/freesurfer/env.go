package freesurfer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"synthbridge/internal/services"
)

// DefaultHomeVariable locates the FreeSurfer installation.
const DefaultHomeVariable = "FREESURFER_HOME"

// buildStampFile is written by FreeSurfer installers at the home root.
const buildStampFile = "build-stamp.txt"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ResolveHome returns the installation directory named by variable.
func ResolveHome(lookup LookupFunc, variable string) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if strings.TrimSpace(variable) == "" {
		variable = DefaultHomeVariable
	}
	value, ok := lookup(variable)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", services.Wrap(services.ErrMissingEnvironment, "environment", "resolve home",
			fmt.Sprintf("%s is not set; source FreeSurfer's SetUpFreeSurfer.sh or export it", variable), nil)
	}
	return filepath.Clean(value), nil
}

// ToolPath returns the expected location of tool inside home.
func ToolPath(home, tool string) string {
	return filepath.Join(home, "bin", tool)
}

// LocateTool resolves and checks the binary for tool.
func LocateTool(home, tool string) (string, error) {
	path := ToolPath(home, tool)
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrMissingEnvironment, "environment", "locate tool",
			fmt.Sprintf("%s not found under %s", tool, home), err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", services.Wrap(services.ErrMissingEnvironment, "environment", "locate tool",
			fmt.Sprintf("%s is not an executable file", path), nil)
	}
	return path, nil
}

// ChildEnv derives the subprocess environment from environ. Variables in
// blank are forced to an empty value; variables in unset are removed.
// Order of the remaining entries is preserved.
func ChildEnv(environ, blank, unset []string) []string {
	drop := make(map[string]struct{}, len(blank)+len(unset))
	for _, name := range blank {
		drop[name] = struct{}{}
	}
	for _, name := range unset {
		drop[name] = struct{}{}
	}
	out := make([]string, 0, len(environ)+len(blank))
	for _, entry := range environ {
		name, _, _ := strings.Cut(entry, "=")
		if _, ok := drop[name]; ok {
			continue
		}
		out = append(out, entry)
	}
	removed := make(map[string]struct{}, len(unset))
	for _, name := range unset {
		removed[name] = struct{}{}
	}
	for _, name := range blank {
		if _, ok := removed[name]; ok {
			continue
		}
		out = append(out, name+"=")
	}
	return out
}

// Version is a FreeSurfer release number.
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is major.minor or newer.
func (v Version) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// ParseVersion extracts the first x.y.z triple from a build stamp such as
// "freesurfer-linux-ubuntu22_x86_64-7.4.1-20230614-7eb8460".
func ParseVersion(stamp string) (Version, bool) {
	m := versionPattern.FindStringSubmatch(stamp)
	if m == nil {
		return Version{}, false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{Major: major, Minor: minor, Patch: patch}, true
}

// DetectVersion reads the installation's build stamp. A missing or
// unparseable stamp reports false.
func DetectVersion(home string) (Version, bool) {
	data, err := os.ReadFile(filepath.Join(home, buildStampFile))
	if err != nil {
		return Version{}, false
	}
	return ParseVersion(string(data))
}
