/*
Copyright © 2018 the HydroMap authors.
This file is part of HydroMap.

HydroMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

HydroMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with HydroMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package hydromaputil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"
	"github.com/spatialmodel/hydromap"
	"github.com/spatialmodel/hydromap/channel"
	"github.com/spatialmodel/hydromap/met"
	"github.com/spatialmodel/hydromap/simtime"
)

// fileFormat parses the file_format option.
func fileFormat(s string) (hydromap.FileFormat, error) {
	switch strings.ToLower(s) {
	case "bin":
		return hydromap.FormatBin, nil
	case "byteswap":
		return hydromap.FormatByteSwap, nil
	case "netcdf":
		return hydromap.FormatNetCDF, nil
	}
	return 0, fmt.Errorf("hydromap: invalid file format %q", s)
}

// buildOptions translates the configuration enums into the model option
// record.
func buildOptions(cfg *Cfg) (hydromap.Options, error) {
	opts := hydromap.DefaultOptions()

	switch strings.ToLower(cfg.GetString("extent")) {
	case "basin", "":
		opts.Extent = hydromap.ExtentBasin
	case "point":
		opts.Extent = hydromap.ExtentPoint
		opts.PointX = cfg.GetInt("point_x")
		opts.PointY = cfg.GetInt("point_y")
	default:
		return opts, fmt.Errorf("hydromap: invalid extent %q", cfg.GetString("extent"))
	}

	switch strings.ToLower(cfg.GetString("gradient")) {
	case "topography", "":
		opts.Gradient = hydromap.GradientTopography
	case "watertable":
		opts.Gradient = hydromap.GradientWaterTable
	default:
		return opts, fmt.Errorf("hydromap: invalid gradient %q", cfg.GetString("gradient"))
	}

	switch strings.ToLower(cfg.GetString("flow_routing")) {
	case "network", "":
		opts.FlowRouting = hydromap.RoutingNetwork
	case "unit":
		opts.FlowRouting = hydromap.RoutingUnitHydrograph
	default:
		return opts, fmt.Errorf("hydromap: invalid flow routing %q", cfg.GetString("flow_routing"))
	}

	switch strings.ToLower(cfg.GetString("infiltration")) {
	case "static", "":
		opts.Infiltration = hydromap.InfiltrationStatic
	case "dynamic":
		opts.Infiltration = hydromap.InfiltrationDynamic
	default:
		return opts, fmt.Errorf("hydromap: invalid infiltration option %q", cfg.GetString("infiltration"))
	}

	switch strings.ToLower(cfg.GetString("canopy_radiation_attenuation")) {
	case "fixed", "":
		opts.CanopyRadAtt = hydromap.CanopyRadAttFixed
	case "variable":
		opts.CanopyRadAtt = hydromap.CanopyRadAttVariable
	default:
		return opts, fmt.Errorf("hydromap: invalid canopy attenuation %q",
			cfg.GetString("canopy_radiation_attenuation"))
	}

	opts.HeatFlux = cfg.GetBool("sensible_heat_flux")
	opts.Shading = cfg.GetBool("shading")
	opts.StreamTemp = cfg.GetBool("stream_temperature")
	opts.CanopyGapping = cfg.GetBool("canopy_gapping")
	opts.SnowSliding = cfg.GetBool("snow_sliding")
	opts.Sediment = cfg.GetBool("sediment")
	opts.RoadRouting = cfg.GetBool("road_routing")
	opts.NDirs = cfg.GetInt("flow_directions")
	return opts, nil
}

func interpScheme(cfg *Cfg) (met.Scheme, error) {
	switch strings.ToLower(cfg.GetString("interpolation")) {
	case "invdist", "":
		return met.InvDist, nil
	case "nearest":
		return met.Nearest, nil
	case "varcress":
		return met.VarCress, nil
	}
	return 0, fmt.Errorf("hydromap: invalid interpolation scheme %q", cfg.GetString("interpolation"))
}

// stationEntry is one row of the TOML station description file.
type stationEntry struct {
	Name             string
	X, Y             float64
	Elevation        float64
	File             string
	SoilLayers       int  `toml:"soil_layers"`
	HasPrecip        bool `toml:"has_precip"`
	HasPrecipLapse   bool `toml:"has_precip_lapse"`
	HasTempLapse     bool `toml:"has_temp_lapse"`
	HasWindDirection bool `toml:"has_wind_direction"`
}

type stationFile struct {
	Station []stationEntry
}

// loadStations opens every station's record stream.
func loadStations(path string) ([]*met.Station, []io.Closer, error) {
	var f stationFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, nil, fmt.Errorf("hydromap: decoding station file %s: %v", path, err)
	}
	if len(f.Station) == 0 {
		return nil, nil, fmt.Errorf("hydromap: no stations in %s", path)
	}
	var stations []*met.Station
	var closers []io.Closer
	for _, e := range f.Station {
		r, err := os.Open(e.File)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, nil, fmt.Errorf("hydromap: opening station records %s: %v", e.File, err)
		}
		closers = append(closers, r)
		stations = append(stations, met.NewStation(e.Name,
			geom.Point{X: e.X, Y: e.Y}, e.Elevation,
			met.Format{
				NSoilLayers:      e.SoilLayers,
				HasPrecip:        e.HasPrecip,
				HasPrecipLapse:   e.HasPrecipLapse,
				HasTempLapse:     e.HasTempLapse,
				HasWindDirection: e.HasWindDirection,
			}, bufio.NewReader(r)))
	}
	return stations, closers, nil
}

// channelClassFile is the TOML shape of the hydraulic class table.
type channelClassFile struct {
	Class []struct {
		ID                  int
		Width               float64
		Friction            float64
		MaxInfiltrationRate float64 `toml:"max_infiltration_rate"`
	}
}

func loadChannelClasses(path string) (map[int]*channel.Class, error) {
	var f channelClassFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("hydromap: decoding channel class table %s: %v", path, err)
	}
	out := make(map[int]*channel.Class, len(f.Class))
	for _, c := range f.Class {
		out[c.ID] = &channel.Class{
			ID: c.ID, Width: c.Width, Friction: c.Friction,
			MaxInfiltrationRate: c.MaxInfiltrationRate,
		}
	}
	return out, nil
}

// loadNetwork reads a segment network and its raster map.
func loadNetwork(networkPath, mapPath string, classes map[int]*channel.Class,
	nx, headerLines int, road bool) (*channel.Network, error) {

	nf, err := os.Open(networkPath)
	if err != nil {
		return nil, fmt.Errorf("hydromap: opening network %s: %v", networkPath, err)
	}
	defer nf.Close()
	n, err := channel.ReadNetwork(nf, classes)
	if err != nil {
		return nil, err
	}
	n.Road = road

	if mapPath != "" {
		mf, err := os.Open(mapPath)
		if err != nil {
			return nil, fmt.Errorf("hydromap: opening network map %s: %v", mapPath, err)
		}
		defer mf.Close()
		if err := n.ReadMap(mf, nx, headerLines); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// BuildModel assembles a Model from the configuration: grids, tables,
// stations, networks, clock, and the initialization pipeline (InitFuncs).
// Run installs the per-step RunFuncs.
func BuildModel(cfg *Cfg, logW io.Writer) (*Model, error) {
	format, err := fileFormat(cfg.GetString("file_format"))
	if err != nil {
		return nil, err
	}
	opts, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}
	scheme, err := interpScheme(cfg)
	if err != nil {
		return nil, err
	}

	start, err := simtime.ParseDate(cfg.GetString("start"))
	if err != nil {
		return nil, err
	}
	end, err := simtime.ParseDate(cfg.GetString("end"))
	if err != nil {
		return nil, err
	}
	clock, err := simtime.NewClock(start, end, cfg.GetInt("dt"))
	if err != nil {
		return nil, err
	}

	params := hydromap.DefaultParams()
	params.Latitude = cfg.GetFloat64("latitude")
	params.Longitude = cfg.GetFloat64("longitude")

	meta := hydromap.GridMeta{
		NX: cfg.GetInt("nx"), NY: cfg.GetInt("ny"),
		DX: cfg.GetFloat64("cell_size"), DY: cfg.GetFloat64("cell_size"),
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	mask, err := hydromap.ReadMask(cfg.GetString("mask_file"), meta)
	if err != nil {
		return nil, err
	}
	dem, err := hydromap.ReadFloatGrid(cfg.GetString("dem_file"), format, meta, "elevation")
	if err != nil {
		return nil, err
	}
	soilDepth, err := hydromap.ReadFloatGrid(cfg.GetString("soil_depth_file"), format, meta, "soil_depth")
	if err != nil {
		return nil, err
	}
	ksLat, err := hydromap.ReadFloatGrid(cfg.GetString("lateral_ks_file"), format, meta, "lateral_ks")
	if err != nil {
		return nil, err
	}
	soilClass, err := hydromap.ReadFloatGrid(cfg.GetString("soil_class_file"), format, meta, "soil_class")
	if err != nil {
		return nil, err
	}
	vegClass, err := hydromap.ReadFloatGrid(cfg.GetString("veg_class_file"), format, meta, "veg_class")
	if err != nil {
		return nil, err
	}
	terrain := hydromap.Terrain{
		Meta: meta, Mask: mask, DEM: dem, SoilDepth: soilDepth,
		KsLat: ksLat, SoilClass: soilClass, VegClass: vegClass,
	}

	sf, err := os.Open(cfg.GetString("soil_table"))
	if err != nil {
		return nil, fmt.Errorf("hydromap: opening soil table: %v", err)
	}
	soilTypes, err := hydromap.ReadSoilTable(sf)
	sf.Close()
	if err != nil {
		return nil, err
	}
	nLayers := 0
	for _, s := range soilTypes {
		nLayers = s.NLayers
		break
	}
	vf, err := os.Open(cfg.GetString("veg_table"))
	if err != nil {
		return nil, fmt.Errorf("hydromap: opening vegetation table: %v", err)
	}
	vegTypes, err := hydromap.ReadVegTable(vf, nLayers, params)
	vf.Close()
	if err != nil {
		return nil, err
	}

	stations, closers, err := loadStations(cfg.GetString("station_file"))
	if err != nil {
		return nil, err
	}

	m := &hydromap.Model{
		Options:   opts,
		Params:    params,
		Clock:     clock,
		SoilTypes: soilTypes,
		VegTypes:  vegTypes,
		Stations:  stations,
	}
	m.MetParams = met.Params{
		MaxSnowTemp:      params.MaxSnowTemp,
		MinRainTemp:      params.MinRainTemp,
		TempLapse:        params.TempLapse,
		PrecipLapse:      params.PrecipLapse,
		PrecipMultiplier: params.PrecipMultiplier,
		MinElev:          params.MinElev,
		RhOverride:       cfg.GetBool("rh_override"),
		Shading:          opts.Shading,
	}
	m.Balance.StepTolerance = 1e-4
	m.Balance.FinalTolerance = 1e-3

	// Channel and road networks.
	if path := cfg.GetString("stream_network_file"); path != "" {
		classes, err := loadChannelClasses(cfg.GetString("channel_class_table"))
		if err != nil {
			return nil, err
		}
		m.Streams, err = loadNetwork(path, cfg.GetString("stream_map_file"), classes,
			meta.NX, cfg.GetInt("stream_map_header_lines"), false)
		if err != nil {
			return nil, err
		}
		if rp := cfg.GetString("road_network_file"); rp != "" {
			m.Roads, err = loadNetwork(rp, cfg.GetString("road_map_file"), classes,
				meta.NX, cfg.GetInt("stream_map_header_lines"), true)
			if err != nil {
				return nil, err
			}
		}
	}

	m.InitFuncs = []hydromap.DomainManipulator{
		hydromap.BuildCells(terrain),
		hydromap.InitNetworks(),
		hydromap.InitStations(scheme, cfg.GetInt("cressman_radius"),
			cfg.GetInt("cressman_stations"), cfg.GetBool("outside_stations_ok")),
	}
	if opts.CanopyGapping {
		gapMap, err := hydromap.ReadFloatGrid(cfg.GetString("gap_map_file"), format, meta, "gap_diameter")
		if err != nil {
			return nil, err
		}
		m.InitFuncs = append(m.InitFuncs, hydromap.InitGaps(gapMap))
	}

	return &Model{Model: m, closers: closers, cfg: cfg, format: format, logW: logW}, nil
}

// Model wraps the core model with the CLI's file handles and output
// wiring.
type Model struct {
	*hydromap.Model

	cfg     *Cfg
	format  hydromap.FileFormat
	logW    io.Writer
	closers []io.Closer
}

// Close releases the station file handles.
func (m *Model) Close() {
	for _, c := range m.closers {
		c.Close()
	}
}

// Run executes the full simulation and writes the final mass-balance
// report.
func Run(cfg *Cfg, logW io.Writer) error {
	m, err := BuildModel(cfg, logW)
	if err != nil {
		return err
	}
	defer m.Close()

	outDir := cfg.GetString("output_dir")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("hydromap: creating output directory: %v", err)
	}
	ledger, err := os.Create(filepath.Join(outDir, cfg.GetString("ledger_file")))
	if err != nil {
		return fmt.Errorf("hydromap: creating ledger: %v", err)
	}
	defer ledger.Close()
	segFlows, err := os.Create(filepath.Join(outDir, cfg.GetString("segment_flow_file")))
	if err != nil {
		return fmt.Errorf("hydromap: creating segment flow output: %v", err)
	}
	defer segFlows.Close()

	var extra []hydromap.DomainManipulator
	if m.Streams != nil {
		extra = append(extra, hydromap.WriteSegmentFlows(segFlows))
	}

	// User-defined output variables become a per-step pixel time series
	// at the cell given by point_x and point_y, whatever the extent.
	if exprs, err := GetStringMapFromSlice(cfg.GetStringSlice("output_variables")); err != nil {
		return err
	} else if len(exprs) > 0 {
		var vars []*hydromap.OutputVar
		names := make([]string, 0, len(exprs))
		for name := range exprs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v, err := hydromap.NewOutputVar(name, exprs[name])
			if err != nil {
				return err
			}
			vars = append(vars, v)
		}
		pixelOut, err := os.Create(filepath.Join(outDir, "pixel.tsv"))
		if err != nil {
			return fmt.Errorf("hydromap: creating pixel output: %v", err)
		}
		defer pixelOut.Close()
		x, y := cfg.GetInt("point_x"), cfg.GetInt("point_y")
		extra = append(extra, hydromap.WritePixelSeries([]*hydromap.PixelDump{
			{X: x, Y: y, Vars: vars, W: pixelOut},
		}))
	}

	if err := m.Init(); err != nil {
		return err
	}
	m.RunFuncs = m.StandardRunFuncs(ledger, logW, extra...)
	if err := m.Model.Run(); err != nil {
		return err
	}
	return m.FinalMassBalance(logW)
}

// WriteNetworkConnectivity loads the stream network and emits the
// derived connectivity table.
func WriteNetworkConnectivity(cfg *Cfg, w io.Writer) error {
	classes, err := loadChannelClasses(cfg.GetString("channel_class_table"))
	if err != nil {
		return err
	}
	n, err := loadNetwork(cfg.GetString("stream_network_file"),
		cfg.GetString("stream_map_file"), classes,
		cfg.GetInt("nx"), cfg.GetInt("stream_map_header_lines"), false)
	if err != nil {
		return err
	}
	return n.WriteConnectivity(w)
}

// sortedOptionNames is used by the config test to verify option
// uniqueness.
func sortedOptionNames() []string {
	names := make([]string, len(options))
	for i, o := range options {
		names[i] = o.name
	}
	sort.Strings(names)
	return names
}
