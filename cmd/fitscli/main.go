// fitscli is a small command-line tool over the go-fits library: it lists
// the HDUs of a local or remote FITS file, prints headers, and extracts
// cutouts.
//
// # Examples
//
//	$ fitscli info https://archive.example.org/j8pu0y010_drc.fits
//	$ fitscli header ./test0.fits --hdu 1
//	$ fitscli cutout s3://stpubdata/hst/public/j8pu/j8pu0y010_drc.fits \
//	    --anon --hdu 1 --x 2001 --y 1001 --size 64,64 -o cut.fits
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	fits "github.com/fornax-navo/go-fits"
	"github.com/fornax-navo/go-fits/cutout"
	"github.com/fornax-navo/go-fits/remote"
	"github.com/fornax-navo/go-fits/wcs"
)

var log = logrus.New()

type rootFlags struct {
	anon      bool
	key       string
	secret    string
	region    string
	endpoint  string
	blockSize int64
	cache     string
	verbose   bool
}

func (f *rootFlags) remoteOptions() remote.Options {
	return remote.Options{
		Anonymous: f.anon,
		Key:       f.key,
		Secret:    f.secret,
		Region:    f.region,
		Endpoint:  f.endpoint,
		BlockSize: f.blockSize,
		Cache:     remote.CacheStrategy(f.cache),
	}
}

func main() {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "fitscli",
		Short:         "inspect and cut FITS files, local or remote",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if flags.verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&flags.anon, "anon", false, "anonymous access to public buckets")
	pf.StringVar(&flags.key, "key", "", "object store access key id")
	pf.StringVar(&flags.secret, "secret", "", "object store secret key")
	pf.StringVar(&flags.region, "region", "", "S3 region override")
	pf.StringVar(&flags.endpoint, "endpoint", "", "S3 endpoint override")
	pf.Int64Var(&flags.blockSize, "block-size", 0, "cache block size in bytes")
	pf.StringVar(&flags.cache, "cache", "", "cache strategy: none, readahead, blockcache, whole")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(infoCmd(flags), headerCmd(flags), cutoutCmd(flags))

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func openList(cmd *cobra.Command, flags *rootFlags, location string) (*fits.HDUList, error) {
	log.WithField("url", location).Debug("opening")

	return fits.Open(cmd.Context(), location, fits.WithRemoteOptions(flags.remoteOptions()))
}

func infoCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info URL",
		Short: "list the HDUs of a FITS file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdul, err := openList(cmd, flags, args[0])
			if err != nil {
				return err
			}
			defer hdul.Close()

			n, err := hdul.Len()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 8, 2, ' ', 0)
			fmt.Fprintln(w, "NO\tNAME\tVER\tKIND\tCARDS\tDIMENSIONS")

			for i := 0; i < n; i++ {
				hdu, err := hdul.At(i)
				if err != nil {
					return err
				}

				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%s\n",
					i, hdu.Name(), hdu.Version(), hdu.Kind(), hdu.Header().Len(), dims(hdu))
			}

			return w.Flush()
		},
	}
}

func dims(hdu fits.HDU) string {
	switch h := hdu.(type) {
	case *fits.ImageHDU:
		if len(h.Shape()) == 0 {
			return "()"
		}

		return fmt.Sprintf("%v %s", h.Shape(), h.DType())
	case *fits.CompressedImageHDU:
		return fmt.Sprintf("%v [%s]", h.Shape(), h.CompressionType())
	case *fits.BinTableHDU:
		return fmt.Sprintf("%dR x %dC", h.NumRows(), len(h.Columns()))
	case *fits.TableHDU:
		return fmt.Sprintf("%dR x %dC", h.NumRows(), len(h.Columns()))
	default:
		return ""
	}
}

func headerCmd(flags *rootFlags) *cobra.Command {
	var hduIx int

	cmd := &cobra.Command{
		Use:   "header URL",
		Short: "print the header of one HDU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdul, err := openList(cmd, flags, args[0])
			if err != nil {
				return err
			}
			defer hdul.Close()

			hdu, err := hdul.At(hduIx)
			if err != nil {
				return err
			}

			for _, c := range hdu.Header().Cards() {
				if c.IsValueless() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", c.Keyword, c.Comment)

					continue
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%-8s = %v", c.Keyword, c.Value)

				if c.Comment != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " / %s", c.Comment)
				}

				fmt.Fprintln(cmd.OutOrStdout())
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&hduIx, "hdu", 0, "HDU index")

	return cmd
}

//nolint:funlen
func cutoutCmd(flags *rootFlags) *cobra.Command {
	var (
		hduIx    int
		x, y     float64
		ra, dec  float64
		sizeArg  string
		sizeDeg  float64
		mode     string
		out      string
		pngWidth int
		useSky   bool
	)

	cmd := &cobra.Command{
		Use:   "cutout URL",
		Short: "extract a rectangular region from an image HDU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdul, err := openList(cmd, flags, args[0])
			if err != nil {
				return err
			}
			defer hdul.Close()

			img, err := hdul.Image(hduIx)
			if err != nil {
				return err
			}

			var w *wcs.WCS
			if wc, err := wcs.FromHeader(img.Header()); err == nil {
				w = wc
			} else if useSky {
				return fmt.Errorf("sky position requested but HDU %d has no usable WCS: %w", hduIx, err)
			}

			pos := cutout.PixelPosition(x, y)
			if useSky {
				pos = cutout.SkyPosition(ra, dec, w)
			}

			var size cutout.Size

			switch {
			case sizeDeg > 0:
				size = cutout.AngularSize(sizeDeg, sizeDeg)
			default:
				ny, nx, err := parseSize(sizeArg)
				if err != nil {
					return err
				}

				size = cutout.PixelSize(ny, nx)
			}

			opts := []cutout.Option{cutout.WithWCS(w)}

			switch mode {
			case "trim", "":
			case "partial":
				opts = append(opts, cutout.WithMode(cutout.Partial))
			case "strict":
				opts = append(opts, cutout.WithMode(cutout.Strict))
			default:
				return fmt.Errorf("unknown mode %q", mode)
			}

			cut, err := cutout.New(img.Section(), pos, size, opts...)
			if err != nil {
				return err
			}

			log.WithFields(logrus.Fields{
				"shape":  cut.Data.Shape(),
				"origin": cut.Origin,
			}).Debug("cutout extracted")

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			if strings.HasSuffix(out, ".png") {
				return cut.WritePNG(f, pngWidth)
			}

			// carry the parent's cards over, but with the WCS shifted into
			// the cutout frame
			hdr := fits.NewHeader()
			for _, c := range img.Header().Cards() {
				hdr.Append(c)
			}

			if cw := cut.WCS(); cw != nil {
				cw.UpdateHeader(hdr)
			}

			return fits.WriteImage(f, hdr, cut.Data)
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&hduIx, "hdu", 0, "HDU index")
	fl.Float64Var(&x, "x", 0, "center pixel column")
	fl.Float64Var(&y, "y", 0, "center pixel row")
	fl.Float64Var(&ra, "ra", 0, "center longitude in degrees")
	fl.Float64Var(&dec, "dec", 0, "center latitude in degrees")
	fl.BoolVar(&useSky, "sky", false, "interpret position as ra/dec")
	fl.StringVar(&sizeArg, "size", "64,64", "size in pixels as ROWS,COLS")
	fl.Float64Var(&sizeDeg, "size-deg", 0, "square size in degrees (overrides --size)")
	fl.StringVar(&mode, "mode", "trim", "edge handling: trim, partial, strict")
	fl.StringVarP(&out, "output", "o", "cutout.fits", "output file (.fits or .png)")
	fl.IntVar(&pngWidth, "png-width", 0, "rescale PNG output to this width")

	return cmd
}

func parseSize(s string) (ny, nx int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad size %q, want ROWS,COLS", s)
	}

	if ny, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return 0, 0, fmt.Errorf("bad size %q: %w", s, err)
	}

	if nx, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return 0, 0, fmt.Errorf("bad size %q: %w", s, err)
	}

	return ny, nx, nil
}
