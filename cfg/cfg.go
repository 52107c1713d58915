// Package cfg 加载配置文件到结构体：按扩展名解码，填充 def 默认值，再按 validate 校验
package cfg

import (
	"os"

	"github.com/pkg/errors"
)

// LoadFile 读取配置文件并转换到 object
func LoadFile(filename string, object any) error {
	decode, err := DecoderFor(filename)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "os.ReadFile [%s] failed", filename)
	}
	ms, err := decode(data)
	if err != nil {
		return errors.WithMessagef(err, "decode [%s]", filename)
	}
	if err := Load(ms, object); err != nil {
		return errors.WithMessagef(err, "load [%s]", filename)
	}
	return nil
}

// Load 把配置树转换到 object，然后填充默认值并校验
func Load(ms *MapStorage, object any) error {
	if err := ms.ConvertTo(object); err != nil {
		return err
	}
	if err := SetDefaults(object); err != nil {
		return err
	}
	return Validate(object)
}
