package vrx

import (
	"os"

	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

// ShaderModule is a loaded SPIR-V module.
type ShaderModule struct {
	Device      *Device
	Description string
	Handle      driver.ShaderModule
}

// LoadShaderModule creates a module from SPIR-V words in code.
func (d *Device) LoadShaderModule(description string, code []byte) (*ShaderModule, error) {
	h, err := d.driver().CreateShaderModule(d.Handle, code)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", description)
	}
	return &ShaderModule{Device: d, Description: description, Handle: h}, nil
}

func (d *Device) LoadShaderModuleFromFile(file string) (*ShaderModule, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read shader")
	}
	return d.LoadShaderModule(file, data)
}

func (s *ShaderModule) Destroy() {
	s.Device.driver().DestroyShaderModule(s.Device.Handle, s.Handle)
}
