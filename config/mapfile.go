package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"elevation-platform/Elevation"
	"elevation-platform/Geo"
	"elevation-platform/Store"
)

// MapFile 地图描述文件：输出剖面与有序的高程图层列表。
// 图层顺序即优先级，排在后面的优先级更高。
type MapFile struct {
	// 剖面名："global-geodetic" 或 "spherical-mercator"
	Profile string `yaml:"profile"`
	// 输出垂直基准名（空表示椭球高）
	VerticalDatum string `yaml:"vertical_datum"`
	// 基准的常量水准面偏移（米），仅在设置了 vertical_datum 时生效
	GeoidOffset float32 `yaml:"geoid_offset"`

	Layers []LayerEntry `yaml:"layers"`
}

// LayerEntry 地图文件中的单个图层描述
type LayerEntry struct {
	Name string `yaml:"name"`
	// 驱动类型："simplex" 或 "grid"
	Driver string `yaml:"driver"`
	Offset bool   `yaml:"offset"`
	// 无数据策略："interpolate"（默认）或 "msl"
	NoDataPolicy string `yaml:"nodata_policy"`

	TileSize     int `yaml:"tile_size"`
	MinLevel     int `yaml:"min_level"`
	MaxLevel     int `yaml:"max_level"`
	MaxDataLevel int `yaml:"max_data_level"`

	NoDataValue   *float32 `yaml:"nodata_value"`
	MinValidValue *float32 `yaml:"min_valid_value"`
	MaxValidValue *float32 `yaml:"max_valid_value"`

	MemCacheSize int `yaml:"mem_cache_size"`

	// 缓存策略："readwrite"（默认）/"readonly"/"writeonly"/"cacheonly"/"none"
	CachePolicy string `yaml:"cache_policy"`
	// 缓存条目最大年龄秒数（0 永不过期）
	CacheMaxAgeSec int `yaml:"cache_max_age_sec"`

	// simplex 驱动参数
	Seed       int64   `yaml:"seed"`
	Amplitude  float64 `yaml:"amplitude"`
	Wavelength float64 `yaml:"wavelength"`
}

// LoadMapFile 解析地图描述文件
func LoadMapFile(path string) (*MapFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取地图文件失败: %w", err)
	}
	var m MapFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("解析地图文件 %s 失败: %w", path, err)
	}
	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("地图文件 %s 未定义任何图层", path)
	}
	return &m, nil
}

// BuildProfile 构造地图的输出剖面（含垂直基准）
func (m *MapFile) BuildProfile() (*Geo.Profile, error) {
	p := Geo.ProfileByName(m.Profile)
	if p == nil {
		return nil, fmt.Errorf("未知剖面: %q", m.Profile)
	}
	if m.VerticalDatum != "" {
		vd := Geo.NewVerticalDatum(m.VerticalDatum, Geo.ConstGeoid(m.GeoidOffset))
		p = p.WithVerticalDatum(vd)
	}
	return p, nil
}

// Options 将图层描述转换为图层配置
func (e LayerEntry) Options() Elevation.LayerOptions {
	opts := Elevation.DefaultLayerOptions(e.Name)
	opts.Offset = e.Offset
	if e.NoDataPolicy == "msl" {
		opts.NoDataPolicy = Elevation.NoDataMSL
	}
	if e.TileSize > 0 {
		opts.TileSize = e.TileSize
	}
	if e.MinLevel > 0 {
		opts.MinLevel = e.MinLevel
	}
	if e.MaxLevel > 0 {
		opts.MaxLevel = e.MaxLevel
	}
	if e.MaxDataLevel > 0 {
		opts.MaxDataLevel = e.MaxDataLevel
	}
	if e.NoDataValue != nil {
		opts.NoDataValue = *e.NoDataValue
	}
	if e.MinValidValue != nil {
		opts.MinValidValue = *e.MinValidValue
	}
	if e.MaxValidValue != nil {
		opts.MaxValidValue = *e.MaxValidValue
	}
	if e.MemCacheSize > 0 {
		opts.MemCacheSize = e.MemCacheSize
	}
	return opts
}

// Policy 将图层描述转换为缓存策略
func (e LayerEntry) Policy() Store.CachePolicy {
	p := Store.DefaultCachePolicy()
	switch e.CachePolicy {
	case "readonly":
		p.Usage = Store.UsageReadOnly
	case "writeonly":
		p.Usage = Store.UsageWriteOnly
	case "cacheonly":
		p.Usage = Store.UsageCacheOnly
	case "none":
		p.Usage = Store.UsageNone
	}
	if e.CacheMaxAgeSec > 0 {
		p.MaxAge = time.Duration(e.CacheMaxAgeSec) * time.Second
	}
	return p
}
