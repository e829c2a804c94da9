/*
Copyright © 2024 the Cate authors.
This file is part of Cate.

Cate is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Cate is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Cate.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cateutil holds the command-line interface to the cate climate
// data toolbox.
package cateutil

import (
	"fmt"
	"sort"
	"time"

	"github.com/lnashier/viper"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cate "github.com/CCI-Tools/cate-sub000"
	"github.com/CCI-Tools/cate-sub000/store"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "quiet",
			usage: `
              quiet disables progress bars.`,
			shorthand:  "q",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "region",
			usage: `
              region specifies the spatial subset as either four
              comma-separated numbers 'lonMin,latMin,lonMax,latMax' or a
              WKT POLYGON string. lonMin > lonMax denotes a box crossing
              the antimeridian.`,
			shorthand:  "r",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "mask",
			usage: `
              mask specifies whether cells outside the exact region polygon
              are filled with NaN rather than only cropping to the
              bounding box.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "start",
			usage: `
              start specifies the inclusive beginning of the temporal
              subset, e.g. 2010-01-01.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "end",
			usage: `
              end specifies the inclusive end of the temporal subset,
              e.g. 2010-12-31.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "catalog",
			usage: `
              catalog specifies the TOML catalog file of the local data
              store.`,
			defaultVal: "catalog.toml",
			flagsets:   []*pflag.FlagSet{storeCmd.PersistentFlags()},
		},
		{
			name: "output",
			usage: `
              output specifies the NetCDF file the opened dataset is
              written to.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{storeOpenCmd.Flags()},
		},
	}

	Cfg = viper.New()
	for _, option := range options {
		for _, set := range option.flagsets {
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(infoCmd)
	Root.AddCommand(normalizeCmd)
	Root.AddCommand(subsetCmd)
	Root.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeOpenCmd)
}

func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("cateutil: reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "cate",
	Short: "A toolbox for gridded climate data.",
	Long: `cate catalogs gridded Earth-observation datasets, normalizes them into a
canonical spatial and temporal representation, and subsets them by region
and time. Use the subcommands listed below to access the functionality.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag) or by using command-line
arguments.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("cate v%s\n", cate.Version)
	},
	DisableAutoGenTag: true,
}

var infoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Print the structure of a NetCDF dataset.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := cate.OpenFile(args[0], monitor())
		if err != nil {
			return err
		}
		printDataset(cmd, ds)
		return nil
	},
	DisableAutoGenTag: true,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize IN OUT",
	Short: "Normalize a dataset into canonical form.",
	Long: `normalize rewrites a gridded NetCDF dataset so that it has 1D lat/lon
coordinates with ascending latitude and longitude in [-180,180), dimension
order (..., time, lat, lon), and a decoded timestamp axis.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := cate.OpenFile(args[0], monitor())
		if err != nil {
			return err
		}
		log.WithField("file", args[0]).Info("normalizing dataset")
		return cate.WriteFile(cate.Normalize(ds), args[1])
	},
	DisableAutoGenTag: true,
}

var subsetCmd = &cobra.Command{
	Use:   "subset IN OUT",
	Short: "Subset a dataset by region and time.",
	Long: `subset slices a normalized NetCDF dataset to a spatial region given with
--region and/or an inclusive time range given with --start/--end. Region
polygons are masked exactly unless --mask=false.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := cate.OpenFile(args[0], monitor())
		if err != nil {
			return err
		}
		ds = cate.Normalize(ds)
		if regionSpec := Cfg.GetString("region"); regionSpec != "" {
			region, err := cate.ParseRegion(regionSpec)
			if err != nil {
				return err
			}
			ds, err = cate.SubsetSpatial(ds, region, Cfg.GetBool("mask"), monitor())
			if err != nil {
				return err
			}
		}
		startStr := Cfg.GetString("start")
		endStr := Cfg.GetString("end")
		if startStr != "" || endStr != "" {
			start, end, err := parseTimeRange(startStr, endStr)
			if err != nil {
				return err
			}
			ds, err = cate.SubsetTemporal(ds, start, end)
			if err != nil {
				return err
			}
		}
		log.WithField("file", args[1]).Info("writing subset")
		return cate.WriteFile(ds, args[1])
	},
	DisableAutoGenTag: true,
}

var storeCmd = &cobra.Command{
	Use:               "store",
	Short:             "Work with the local data-store catalog.",
	DisableAutoGenTag: true,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the datasets in the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.OpenLocal(Cfg.GetString("catalog"))
		if err != nil {
			return err
		}
		for _, id := range s.IDs() {
			d, err := s.Describe(id)
			if err != nil {
				return err
			}
			cmd.Printf("%s\t%s\n", id, d.Title)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var storeOpenCmd = &cobra.Command{
	Use:   "open ID",
	Short: "Open a catalog dataset and write it to a local NetCDF file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := Cfg.GetString("output")
		if out == "" {
			return fmt.Errorf("cateutil: the --output flag is required")
		}
		s, err := store.OpenLocal(Cfg.GetString("catalog"))
		if err != nil {
			return err
		}
		ds, err := s.Open(args[0], monitor())
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"dataset": args[0], "file": out}).Info("writing dataset")
		return cate.WriteFile(ds, out)
	},
	DisableAutoGenTag: true,
}

func parseTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	const layout = "2006-01-02"
	start := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	var err error
	if startStr != "" {
		if start, err = time.Parse(layout, startStr); err != nil {
			return start, end, fmt.Errorf("cateutil: parsing --start: %v", err)
		}
	}
	if endStr != "" {
		if end, err = time.Parse(layout, endStr); err != nil {
			return start, end, fmt.Errorf("cateutil: parsing --end: %v", err)
		}
		// The end day itself is included.
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}

func printDataset(cmd *cobra.Command, ds *cate.Dataset) {
	dims := make([]string, 0, len(ds.Dims))
	for d := range ds.Dims {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	cmd.Println("Dimensions:")
	for _, d := range dims {
		cmd.Printf("  %s: %d\n", d, ds.Dims[d])
	}
	printVars := func(title string, vars map[string]*cate.Variable) {
		names := make([]string, 0, len(vars))
		for n := range vars {
			names = append(names, n)
		}
		sort.Strings(names)
		cmd.Printf("%s:\n", title)
		for _, n := range names {
			cmd.Printf("  %s %v\n", n, vars[n].Dims)
		}
	}
	printVars("Coordinates", ds.Coords)
	printVars("Data variables", ds.DataVars)
	attrs := make([]string, 0, len(ds.Attrs))
	for a := range ds.Attrs {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	cmd.Println("Attributes:")
	for _, a := range attrs {
		cmd.Printf("  %s: %s\n", a, cast.ToString(ds.Attrs[a]))
	}
}
