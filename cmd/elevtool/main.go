// elevtool 从地图描述文件构建图层栈，合成指定瓦片的高程网格与法线图。
//
// 用法示例:
//
//	elevtool -map map.yaml -level 5 -x 17 -y 9 -size 257 -out tile.ehg -normals
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"elevation-platform/Elevation"
	"elevation-platform/Geo"
	"elevation-platform/Source"
	"elevation-platform/Store"
	"elevation-platform/config"
	"elevation-platform/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径（空则按默认路径合并加载）")
		mapPath     = flag.String("map", "map.yaml", "地图描述文件路径")
		level       = flag.Int("level", 0, "瓦片层级")
		tileX       = flag.Int("x", 0, "瓦片列号")
		tileY       = flag.Int("y", 0, "瓦片行号")
		size        = flag.Int("size", Elevation.DefaultTileSize, "输出网格尺寸")
		outPath     = flag.String("out", "", "输出文件路径（空则不落盘）")
		withNormals = flag.Bool("normals", false, "是否生成法线图")
	)
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFileInto(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
	} else {
		config.MustLoadMergedInto(&cfg)
	}

	initLogging(cfg.Logging)

	mapFile, err := config.LoadMapFile(*mapPath)
	if err != nil {
		logger.Error("加载地图文件失败: %v", err)
		os.Exit(1)
	}
	profile, err := mapFile.BuildProfile()
	if err != nil {
		logger.Error("构建剖面失败: %v", err)
		os.Exit(1)
	}

	bin, err := openCacheBin(cfg.Cache)
	if err != nil {
		logger.Error("打开缓存槽失败: %v", err)
		os.Exit(1)
	}
	if bin != nil {
		defer bin.Close()
	}

	stack, err := buildLayers(mapFile, profile, bin)
	if err != nil {
		logger.Error("构建图层栈失败: %v", err)
		os.Exit(1)
	}

	key := Geo.NewTileKey(*level, *tileX, *tileY, profile)
	if !key.Valid() {
		logger.Error("瓦片键无效: %d/%d/%d", *level, *tileX, *tileY)
		os.Exit(1)
	}

	hf := Elevation.NewHeightGrid(*size, *size)
	var normalMap *Elevation.NormalMap
	if *withNormals {
		normalMap = Elevation.NewNormalMap(*size, *size)
	}

	compositor := Elevation.NewCompositor(stack...)
	progress := Elevation.NewProgress()

	start := time.Now()
	ok := compositor.Populate(hf, normalMap, key, nil, Elevation.InterpBilinear, progress)
	elapsed := time.Since(start)

	valid, min, max := gridStats(hf)
	logger.Info("合成 %s 完成: 真实数据=%v 耗时=%v 有效样本=%d/%d 高度区间=[%.1f, %.1f]",
		key.Str(), ok, elapsed, valid, hf.Cols*hf.Rows, min, max)

	if *outPath != "" {
		blob, err := hf.Encode()
		if err != nil {
			logger.Error("编码输出失败: %v", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outPath, blob, 0o644); err != nil {
			logger.Error("写出文件失败: %v", err)
			os.Exit(1)
		}
		logger.Info("已写出 %s (%d 字节)", *outPath, len(blob))

		if normalMap != nil {
			pgmPath := *outPath + ".normals.pgm"
			if err := os.WriteFile(pgmPath, normalPreviewPGM(normalMap), 0o644); err != nil {
				logger.Error("写出法线预览失败: %v", err)
				os.Exit(1)
			}
			logger.Info("已写出法线预览 %s", pgmPath)
		}
	}
}

// normalPreviewPGM 将法线图的 z 分量渲染为灰度 PGM：越接近平面越亮
func normalPreviewPGM(nm *Elevation.NormalMap) []byte {
	var buf []byte
	buf = append(buf, []byte(fmt.Sprintf("P5\n%d %d\n255\n", nm.Cols, nm.Rows))...)
	for r := 0; r < nm.Rows; r++ {
		for c := 0; c < nm.Cols; c++ {
			nz := nm.At(c, r)[2]
			if nz < 0 {
				nz = 0
			}
			buf = append(buf, byte(nz*255))
		}
	}
	return buf
}

// initLogging 按配置初始化全局日志
func initLogging(cfg config.LoggingConfig) {
	level := logger.ParseLevel(cfg.Level)
	fileCfg := logger.FileRotateConfig{}
	if cfg.File != "" {
		fileCfg = logger.DefaultFileRotateConfig(cfg.File)
		if cfg.MaxSizeMB > 0 {
			fileCfg.MaxSizeMB = cfg.MaxSizeMB
		}
		if cfg.MaxBackups > 0 {
			fileCfg.MaxBackups = cfg.MaxBackups
		}
		if cfg.MaxAgeDays > 0 {
			fileCfg.MaxAgeDays = cfg.MaxAgeDays
		}
	}
	console := cfg.Console || cfg.File == ""
	logger.SetGlobalLogger(logger.NewZapLogger(level, fileCfg, console))
}

// openCacheBin 按配置打开持久化缓存槽
func openCacheBin(cfg config.CacheConfig) (*Store.TileCacheBin, error) {
	if cfg.DBDir == "" {
		return nil, nil
	}
	dbDir, err := config.ResolvePath(cfg.DBDir)
	if err != nil {
		return nil, err
	}
	return Store.NewTileCacheBin(Store.TileCacheConfig{
		Backend:            Store.StorageBackend(cfg.Backend),
		DBDir:              dbDir,
		Bin:                cfg.Bin,
		RedisAddr:          cfg.RedisAddr,
		EnableCache:        cfg.EnableCache,
		CacheExpiration:    cfg.CacheExpiration(),
		EnableAsyncPersist: cfg.EnableAsyncPersist,
		PersistBatchSize:   cfg.PersistBatchSize,
		PersistInterval:    cfg.PersistInterval(),
	})
}

// buildLayers 按地图文件构建图层栈（文件内顺序即优先级，靠后更高）
func buildLayers(m *config.MapFile, profile *Geo.Profile, bin *Store.TileCacheBin) ([]Elevation.Layer, error) {
	var stack []Elevation.Layer
	for _, entry := range m.Layers {
		opts := entry.Options()

		var source Elevation.TileSource
		switch entry.Driver {
		case "simplex", "":
			source = Source.NewSimplexSource(entry.Name, entry.Seed, opts.TileSize, entry.Amplitude, entry.Wavelength)
		case "grid":
			source = Source.NewGridSource(entry.Name)
		default:
			return nil, fmt.Errorf("图层 %s 的驱动类型未知: %q", entry.Name, entry.Driver)
		}

		layer := Elevation.NewElevationLayer(opts, profile, source)
		if bin != nil {
			layer.SetCacheBin(bin, entry.Policy())
		}
		if err := layer.Open(); err != nil {
			return nil, fmt.Errorf("图层 %s 打开失败: %w", entry.Name, err)
		}
		logger.Info("图层 %s 就绪: 驱动=%s 偏移层=%v 层级=[%d,%d]",
			entry.Name, source.Name(), opts.Offset, opts.MinLevel, opts.MaxLevel)
		stack = append(stack, layer)
	}
	return stack, nil
}

// gridStats 统计有效样本数与高度区间
func gridStats(hf *Elevation.HeightGrid) (valid int, min, max float32) {
	first := true
	for _, v := range hf.Heights {
		if v == Elevation.NoDataValue {
			continue
		}
		valid++
		if first || v < min {
			min = v
		}
		if first || v > max {
			max = v
		}
		first = false
	}
	return valid, min, max
}
