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

// Package hydromaputil holds the command-line interface and
// configuration handling for the HydroMap model.
package hydromaputil

import (
	"fmt"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
type Cfg struct {
	*viper.Viper

	Root       *cobra.Command
	versionCmd *cobra.Command
	runCmd     *cobra.Command
	networkCmd *cobra.Command
}

// Version is the model version reported by the version command.
const Version = "1.0.0"

// options are the configuration entries exposed both as flags and as
// config-file keys.
var options = []struct {
	name, usage string
	defaultVal  interface{}
	isInputFile bool
}{
	{"config", "Path to the TOML configuration file.", "", true},
	{"start", "Simulation start date (MM/DD/YYYY-HH:MM:SS).", "", false},
	{"end", "Simulation end date (MM/DD/YYYY-HH:MM:SS).", "", false},
	{"dt", "Model time step in seconds; must divide 86400.", 3600, false},
	{"file_format", "Raster file format: bin, byteswap, or netcdf.", "bin", false},
	{"extent", "Run extent: basin or point.", "basin", false},
	{"point_x", "Column of the cell for a point run.", 0, false},
	{"point_y", "Row of the cell for a point run.", 0, false},
	{"gradient", "Subsurface flow gradient: topography or watertable.", "topography", false},
	{"flow_routing", "Surface routing: network or unit.", "network", false},
	{"interpolation", "Station interpolation: invdist, nearest, or varcress.", "invdist", false},
	{"cressman_radius", "Search radius (cells) for varcress interpolation.", 10, false},
	{"cressman_stations", "Maximum stations for varcress interpolation.", 4, false},
	{"infiltration", "Infiltration capacity model: static or dynamic.", "static", false},
	{"sensible_heat_flux", "Solve the soil surface energy balance for an effective surface temperature.", false, false},
	{"shading", "Use the topographic shading table.", false, false},
	{"canopy_radiation_attenuation", "Canopy shortwave attenuation: fixed or variable.", "fixed", false},
	{"stream_temperature", "Accumulate segment radiation for stream temperature.", false, false},
	{"canopy_gapping", "Enable the canopy-gap submodel.", false, false},
	{"snow_sliding", "Enable down-gradient snow redistribution.", false, false},
	{"sediment", "Enable sediment routing.", false, false},
	{"road_routing", "Route road-surface water through the road network.", false, false},
	{"flow_directions", "Number of routing directions: 4 or 8.", 8, false},
	{"rh_override", "Force RH to 100% when precipitating.", false, false},
	{"outside_stations_ok", "Allow stations outside the bounding box (warning only).", true, false},

	{"nx", "Raster columns.", 0, false},
	{"ny", "Raster rows.", 0, false},
	{"cell_size", "Raster cell spacing (m).", 0.0, false},
	{"latitude", "Basin latitude (degrees).", 47.0, false},
	{"longitude", "Basin longitude (degrees).", -122.0, false},

	{"mask_file", "Basin mask raster (1 byte per cell).", "", true},
	{"dem_file", "Surface elevation raster.", "", true},
	{"soil_depth_file", "Soil depth raster.", "", true},
	{"lateral_ks_file", "Lateral conductivity raster.", "", true},
	{"soil_class_file", "Soil class raster.", "", true},
	{"veg_class_file", "Vegetation class raster.", "", true},
	{"gap_map_file", "Canopy gap diameter raster.", "", true},
	{"soil_table", "TOML soil class table.", "", true},
	{"veg_table", "TOML vegetation class table.", "", true},
	{"channel_class_table", "TOML channel hydraulic class table.", "", true},
	{"stream_network_file", "Stream segment network file.", "", true},
	{"stream_map_file", "Stream map file (cell crossings).", "", true},
	{"stream_map_header_lines", "Header lines in the stream map file.", 5, false},
	{"road_network_file", "Road segment network file.", "", true},
	{"road_map_file", "Road map file (cell crossings).", "", true},
	{"station_file", "Station description file.", "", true},

	{"output_dir", "Directory for model outputs.", "output", false},
	{"ledger_file", "Basin mass-balance ledger path.", "mass.balance", false},
	{"segment_flow_file", "Stream segment discharge output path.", "streamflow", false},
	{"output_variables", "Output variable expressions as name=expr pairs.", []string{}, false},
}

// InitializeConfig builds the command tree and binds every option to a
// flag and a configuration key.
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "hydromap",
		Short: "HydroMap is a distributed basin hydrology model.",
		Long: `HydroMap simulates the coupled water and energy balance of every cell
in a raster basin—canopy interception, a two-layer snowpack,
evapotranspiration, and unsaturated soil water—together with saturated
subsurface transport, overland flow, and routing through stream and
road networks.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if file := cfg.GetString("config"); file != "" {
				cfg.SetConfigFile(file)
				if err := cfg.ReadInConfig(); err != nil {
					return fmt.Errorf("hydromap: reading configuration %s: %v", file, err)
				}
			}
			return nil
		},
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("HydroMap v%s\n", Version)
		},
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the model over the configured time window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cfg, os.Stdout)
		},
	}

	cfg.networkCmd = &cobra.Command{
		Use:   "network",
		Short: "Read the channel network and write its connectivity table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return WriteNetworkConnectivity(cfg, os.Stdout)
		},
	}

	for _, opt := range options {
		flags := []*pflag.FlagSet{cfg.Root.PersistentFlags()}
		for _, fs := range flags {
			switch v := opt.defaultVal.(type) {
			case string:
				fs.String(opt.name, v, opt.usage)
			case int:
				fs.Int(opt.name, v, opt.usage)
			case float64:
				fs.Float64(opt.name, v, opt.usage)
			case bool:
				fs.Bool(opt.name, v, opt.usage)
			case []string:
				fs.StringSlice(opt.name, v, opt.usage)
			default:
				panic(fmt.Sprintf("unsupported option type %T for %s", opt.defaultVal, opt.name))
			}
			cfg.BindPFlag(opt.name, fs.Lookup(opt.name))
		}
		cfg.SetDefault(opt.name, opt.defaultVal)
	}

	cfg.Root.AddCommand(cfg.versionCmd, cfg.runCmd, cfg.networkCmd)
	return cfg
}

// GetStringMapFromSlice parses "name=expression" pairs; a bare name maps
// to itself.
func GetStringMapFromSlice(items []string) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, item := range items {
		s := strings.TrimSpace(cast.ToString(item))
		if s == "" {
			return nil, fmt.Errorf("hydromap: empty output variable entry")
		}
		if i := strings.Index(s, "="); i > 0 {
			out[strings.TrimSpace(s[:i])] = strings.TrimSpace(s[i+1:])
		} else {
			out[s] = s
		}
	}
	return out, nil
}
