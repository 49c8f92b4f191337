package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"elevation-platform/Elevation"
	"elevation-platform/Store"
)

// TestLoadFileInto toml 配置解码与默认值覆盖
func TestLoadFileInto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[Cache]
backend = "sqlite"
db_dir = "/var/lib/elevation"
bin = "terrain"
enable_cache = true
cache_expiration_sec = 600
enable_async_persist = true
persist_batch_size = 50
persist_interval_sec = 3

[Logging]
level = "debug"
file = "logs/elev.log"
max_size_mb = 64
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadFileInto(path, &cfg); err != nil {
		t.Fatalf("解码失败: %v", err)
	}

	if cfg.Cache.Backend != "sqlite" || cfg.Cache.DBDir != "/var/lib/elevation" || cfg.Cache.Bin != "terrain" {
		t.Errorf("缓存配置不符: %+v", cfg.Cache)
	}
	if !cfg.Cache.EnableCache || !cfg.Cache.EnableAsyncPersist {
		t.Error("开关配置不符")
	}
	if cfg.Cache.CacheExpiration() != 10*time.Minute {
		t.Errorf("过期时长不符: %v", cfg.Cache.CacheExpiration())
	}
	if cfg.Cache.PersistInterval() != 3*time.Second {
		t.Errorf("持久化间隔不符: %v", cfg.Cache.PersistInterval())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.File != "logs/elev.log" || cfg.Logging.MaxSizeMB != 64 {
		t.Errorf("日志配置不符: %+v", cfg.Logging)
	}
	// 文件未提及的字段保留默认值
	if !cfg.Logging.Console {
		t.Error("未覆盖的字段应保留默认值")
	}

	if err := LoadFileInto(filepath.Join(t.TempDir(), "absent.toml"), &cfg); err == nil {
		t.Error("不存在的文件应报错")
	}
}

// TestLoadMapFile 地图文件解析与派生配置
func TestLoadMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	content := `
profile: global-geodetic
vertical_datum: egm96
geoid_offset: 18.5
layers:
  - name: world
    driver: simplex
    seed: 7
    amplitude: 2500
    wavelength: 25
    max_data_level: 12
    cache_policy: readonly
    cache_max_age_sec: 3600
  - name: patch
    driver: grid
    offset: true
    nodata_policy: msl
    tile_size: 65
    min_level: 2
    nodata_value: -9999
    cache_policy: none
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadMapFile(path)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	profile, err := m.BuildProfile()
	if err != nil {
		t.Fatalf("构造剖面失败: %v", err)
	}
	vd := profile.SRS().VerticalDatum()
	if vd == nil || vd.Name() != "egm96" {
		t.Fatal("剖面应携带垂直基准")
	}

	if len(m.Layers) != 2 {
		t.Fatalf("图层数不符: %d", len(m.Layers))
	}

	world := m.Layers[0]
	if world.Driver != "simplex" || world.Seed != 7 {
		t.Errorf("simplex 驱动参数不符: %+v", world)
	}
	wOpts := world.Options()
	if wOpts.MaxDataLevel != 12 || wOpts.TileSize != Elevation.DefaultTileSize || wOpts.Offset {
		t.Errorf("world 图层配置不符: %+v", wOpts)
	}
	wPolicy := world.Policy()
	if wPolicy.Usage != Store.UsageReadOnly || wPolicy.MaxAge != time.Hour {
		t.Errorf("world 缓存策略不符: %+v", wPolicy)
	}

	patch := m.Layers[1]
	pOpts := patch.Options()
	if !pOpts.Offset || pOpts.NoDataPolicy != Elevation.NoDataMSL {
		t.Errorf("patch 图层配置不符: %+v", pOpts)
	}
	if pOpts.TileSize != 65 || pOpts.MinLevel != 2 || pOpts.NoDataValue != -9999 {
		t.Errorf("patch 数值配置不符: %+v", pOpts)
	}
	if patch.Policy().Usage != Store.UsageNone {
		t.Error("patch 缓存策略应为 none")
	}
}

// TestLoadMapFileRejectsEmpty 图层为空的地图文件应拒绝
func TestLoadMapFileRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	if err := os.WriteFile(path, []byte("profile: global-geodetic\nlayers: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMapFile(path); err == nil {
		t.Error("空图层列表应报错")
	}

	if _, err := LoadMapFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("不存在的文件应报错")
	}
}
