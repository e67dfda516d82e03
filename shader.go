package dieselrhi

import (
	"os"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

// CreateShaderFromBytes creates a shader module from compiled bytecode,
// whose length must be a multiple of 4. refl describes the resources the
// shader uses; entries without a stage mask are visible to stage.
func (d *Device) CreateShaderFromBytes(stage ShaderStage, code []byte, refl Reflection) (ShaderHandle, error) {
	switch stage {
	case driver.StageVertex, driver.StageFragment, driver.StageCompute:
	default:
		return ShaderHandle{}, errors.Wrapf(driver.ErrInvalid, "shader: stage must be a single stage, got %s", stage)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return ShaderHandle{}, errors.Wrapf(driver.ErrInvalid, "shader: bytecode of %d bytes", len(code))
	}
	refl = refl.withStage(stage)
	if _, err := MergeReflection(refl); err != nil {
		return ShaderHandle{}, err
	}
	sh, err := d.dev.NewShader(stage, code)
	if err != nil {
		d.fatal("shader: create", err)
		return ShaderHandle{}, err
	}
	return ShaderHandle{d.res.shaders.Insert(shaderRecord{native: sh, stage: stage, refl: refl})}, nil
}

// CreateShaderFromFile reads bytecode from path.
func (d *Device) CreateShaderFromFile(stage ShaderStage, path string, refl Reflection) (ShaderHandle, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return ShaderHandle{}, errors.Wrapf(err, "shader: read %s", path)
	}
	h, err := d.CreateShaderFromBytes(stage, code, refl)
	return h, errors.Wrapf(err, "shader: %s", path)
}

// ShaderReflection returns the stage-resolved reflection of h.
func (d *Device) ShaderReflection(h ShaderHandle) (Reflection, bool) {
	rec, ok := d.res.shaders.Get(h.h)
	return rec.refl, ok
}

// DestroyShader retires h. Pipelines already built from it stay valid.
func (d *Device) DestroyShader(h ShaderHandle) {
	rec, ok := d.res.shaders.Remove(h.h)
	d.assertf(ok, "DestroyShader on stale handle %+v", h.h)
	if ok {
		d.retire(rec.native)
	}
}
