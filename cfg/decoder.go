package cfg

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decoder 把配置文件内容解码为配置树
type Decoder func(data []byte) (*MapStorage, error)

var decoders = map[string]Decoder{
	"json": DecodeJSON,
	"yaml": DecodeYAML,
	"yml":  DecodeYAML,
	"toml": DecodeTOML,
	"ini":  DecodeINI,
	"env":  DecodeEnv,
}

// DecoderFor 根据文件扩展名选择解码器，文件名 .env 视为 env 格式
func DecoderFor(filename string) (Decoder, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if d, ok := decoders[ext]; ok {
		return d, nil
	}
	return nil, errors.Errorf("unsupported config format %q", filename)
}

func DecodeJSON(data []byte) (*MapStorage, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "json.Unmarshal failed")
	}
	return NewMapStorage(v), nil
}

func DecodeYAML(data []byte) (*MapStorage, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "yaml.Unmarshal failed")
	}
	return NewMapStorage(v), nil
}

func DecodeTOML(data []byte) (*MapStorage, error) {
	v := map[string]any{}
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, errors.Wrap(err, "toml.Decode failed")
	}
	return NewMapStorage(v), nil
}

// DecodeINI 默认 section 中的键放在顶层，其他 section 成为同名子对象，
// section 名中的点号表示嵌套，例如 [storage.options]
func DecodeINI(data []byte) (*MapStorage, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "ini.Load failed")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			target = nested(result, strings.Split(name, "."))
		}
		for _, key := range section.Keys() {
			target[key.Name()] = scalar(key.String())
		}
	}
	return NewMapStorage(result), nil
}

// DecodeEnv 解析 .env 文件，双下划线表示嵌套，例如 STORAGE__OPTIONS__PATH=data
func DecodeEnv(data []byte) (*MapStorage, error) {
	env, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "godotenv.Unmarshal failed")
	}

	result := map[string]any{}
	for k, v := range env {
		path := strings.Split(strings.ToLower(k), "__")
		target := nested(result, path[:len(path)-1])
		target[path[len(path)-1]] = scalar(v)
	}
	return NewMapStorage(result), nil
}

func nested(m map[string]any, path []string) map[string]any {
	for _, p := range path {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	return m
}

// scalar 文本值尽量转换为布尔和数字
func scalar(s string) any {
	if b, err := strconv.ParseBool(s); err == nil && (strings.EqualFold(s, "true") || strings.EqualFold(s, "false")) {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
