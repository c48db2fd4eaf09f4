package handoff

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/app-updater/internal/config"
)

// Step is a single action of the hand-off.
type Step string

const (
	// StepWait waits for the parent updater to exit.
	StepWait Step = "wait"
	// StepRemoveUpdater deletes the old updater executable.
	StepRemoveUpdater Step = "remove-updater"
	// StepExpandPackage extracts the downloaded package into the base directory.
	StepExpandPackage Step = "expand-package"
	// StepRemovePackage deletes the downloaded package.
	StepRemovePackage Step = "remove-package"
	// StepRelaunchUpdater starts the new updater with the saved arguments.
	StepRelaunchUpdater Step = "relaunch-updater"
	// StepRemoveArguments deletes the saved arguments file.
	StepRemoveArguments Step = "remove-arguments"
	// StepRemoveSelf deletes the descriptor and the hand-off executable.
	StepRemoveSelf Step = "remove-self"
)

const (
	// DescriptorFilename is the hand-off descriptor written beside the updater.
	DescriptorFilename = "update-handoff.yaml"
	// PackageFilename is the downloaded release package.
	PackageFilename = "update.zip"
	// ArgumentsFilename keeps the original command line, one argument per line.
	ArgumentsFilename = "tempArgs.txt"
	// RunnerSuffix is appended to the updater name to form the hand-off executable.
	RunnerSuffix = "-handoff"

	// DefaultMaxWait bounds how long the parent is polled after the grace period.
	DefaultMaxWait = 30 * time.Second

	// descriptorPermissions is the mode of the descriptor file.
	descriptorPermissions = 0o600
)

var (
	// errNoSteps is returned for a descriptor without steps.
	errNoSteps = errors.New("descriptor has no steps")
	// errUnknownStep is returned for a step this runner does not know.
	errUnknownStep = errors.New("unknown hand-off step")
	// errMissingField is returned when a step needs a field that is empty.
	errMissingField = errors.New("descriptor field is required")
	// errGracePeriodTooShort is returned when the parent would get too little time to exit.
	errGracePeriodTooShort = errors.New("grace period is too short")
)

// Descriptor is everything the hand-off process needs, persisted as YAML.
type Descriptor struct {
	// ParentPID is the updater process the hand-off waits for.
	ParentPID int `yaml:"parent_pid"`
	// GracePeriod is slept before polling for the parent.
	GracePeriod time.Duration `yaml:"grace_period"`
	// MaxWait bounds polling for the parent after the grace period.
	MaxWait time.Duration `yaml:"max_wait"`
	// BaseDir is the updater's directory, where the package is expanded.
	BaseDir string `yaml:"base_dir"`
	// UpdaterPath is the updater executable being replaced.
	UpdaterPath string `yaml:"updater_path"`
	// PackagePath is the downloaded release package.
	PackagePath string `yaml:"package_path"`
	// ArgumentsPath is the file with the original command line.
	ArgumentsPath string `yaml:"arguments_path"`
	// RunnerPath is the hand-off executable, a copy of the old updater.
	RunnerPath string `yaml:"runner_path"`
	// LogFile is appended to by the hand-off process.
	LogFile string `yaml:"log_file"`
	// LogLevel is the minimum level of the hand-off log.
	LogLevel string `yaml:"log_level"`
	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// path is where the descriptor was loaded from or saved to.
	path string
}

// DefaultSteps returns the complete hand-off sequence.
func DefaultSteps() []Step {
	return []Step{
		StepWait,
		StepRemoveUpdater,
		StepExpandPackage,
		StepRemovePackage,
		StepRelaunchUpdater,
		StepRemoveArguments,
		StepRemoveSelf,
	}
}

// RunnerFilename returns the hand-off executable name for an updater executable name.
func RunnerFilename(updaterFilename string) string {
	extension := filepath.Ext(updaterFilename)

	return updaterFilename[:len(updaterFilename)-len(extension)] + RunnerSuffix + extension
}

// NewDescriptor returns a descriptor for an updater living in baseDir
// with the standard artifact layout and the complete step list.
func NewDescriptor(parentPID int, updaterPath string, gracePeriod time.Duration) *Descriptor {
	baseDir := filepath.Dir(updaterPath)

	return &Descriptor{
		ParentPID:     parentPID,
		GracePeriod:   gracePeriod,
		MaxWait:       DefaultMaxWait,
		BaseDir:       baseDir,
		UpdaterPath:   updaterPath,
		PackagePath:   filepath.Join(baseDir, PackageFilename),
		ArgumentsPath: filepath.Join(baseDir, ArgumentsFilename),
		RunnerPath:    filepath.Join(baseDir, RunnerFilename(filepath.Base(updaterPath))),
		Steps:         DefaultSteps(),
	}
}

// Path returns where the descriptor was last loaded from or saved to.
func (d *Descriptor) Path() string {
	return d.path
}

// Validate fills defaults and checks that every step has what it needs.
func (d *Descriptor) Validate() error {
	if len(d.Steps) == 0 {
		return errNoSteps
	}

	if d.MaxWait <= 0 {
		d.MaxWait = DefaultMaxWait
	}

	for _, step := range d.Steps {
		if !slices.Contains(DefaultSteps(), step) {
			return fmt.Errorf("%q: %w", step, errUnknownStep)
		}

		if err := d.validateStep(step); err != nil {
			return err
		}
	}

	return nil
}

// requiredField is a descriptor field a step cannot run without.
type requiredField struct {
	name  string
	value string
}

func (d *Descriptor) validateStep(step Step) error {
	var required []requiredField

	switch step {
	case StepWait:
		if d.GracePeriod < config.MinGracePeriod {
			return fmt.Errorf("%s is less than %s: %w", d.GracePeriod, config.MinGracePeriod, errGracePeriodTooShort)
		}
	case StepRemoveUpdater:
		required = []requiredField{{"updater_path", d.UpdaterPath}}
	case StepExpandPackage:
		required = []requiredField{{"package_path", d.PackagePath}, {"base_dir", d.BaseDir}}
	case StepRemovePackage:
		required = []requiredField{{"package_path", d.PackagePath}}
	case StepRelaunchUpdater:
		required = []requiredField{{"updater_path", d.UpdaterPath}, {"arguments_path", d.ArgumentsPath}}
	case StepRemoveArguments:
		required = []requiredField{{"arguments_path", d.ArgumentsPath}}
	case StepRemoveSelf:
		required = []requiredField{{"runner_path", d.RunnerPath}}
	}

	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%s for step %s: %w", field.name, step, errMissingField)
		}
	}

	return nil
}

// Load reads and validates a descriptor.
func Load(path string) (*Descriptor, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var d Descriptor
	if err = yaml.Unmarshal(contents, &d); err != nil {
		return nil, fmt.Errorf("unmarshal descriptor: %w", err)
	}

	if err = d.Validate(); err != nil {
		return nil, err
	}

	d.path = path

	return &d, nil
}

// Save validates the descriptor and writes it to path, flushed to disk.
func (d *Descriptor) Save(path string) error {
	if err := d.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	if err = writeFileSync(path, data, descriptorPermissions); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}

	d.path = path

	return nil
}
