package device

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// InventoryEntry is one device as written in the inventory file.
type InventoryEntry struct {
	MAC   string `yaml:"mac" validate:"required,max=64"`
	Name  string `yaml:"name" validate:"required,max=100"`
	Type  string `yaml:"type" validate:"required"`
	Model string `yaml:"model" validate:"max=64"`
}

type inventoryFile struct {
	Devices []InventoryEntry `yaml:"devices"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReadInventory loads and parses the inventory file at path.
func ReadInventory(path string) ([]InventoryEntry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidInventory, path, err)
	}
	return ParseInventory(data)
}

// ParseInventory parses inventory YAML and validates every entry.
// Duplicate MACs are rejected; unknown types are left for the caller.
func ParseInventory(data []byte) ([]InventoryEntry, error) {
	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %w", ErrInvalidInventory, err)
	}

	seen := make(map[string]struct{}, len(file.Devices))
	var errs []error
	for i := range file.Devices {
		entry := &file.Devices[i]
		entry.MAC = NormalizeMAC(entry.MAC)

		if err := validate.Struct(entry); err != nil {
			errs = append(errs, fmt.Errorf("devices[%d]: %w", i, describeValidation(err)))
			continue
		}
		if _, dup := seen[entry.MAC]; dup {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate mac %s", i, entry.MAC))
			continue
		}
		seen[entry.MAC] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInventory, errors.Join(errs...))
	}
	return file.Devices, nil
}

// describeValidation turns validator errors into "field: rule" messages.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Errorf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.Join(msgs...)
}
