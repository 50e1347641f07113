// Converts a directory of labelled face images into TFRecord shards for the TensorFlow object
// detection API.
package main

import (
	"context"
	goflag "flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/sensorable/lfwrecord"
)

var showProgress bool // Draw a progress bar on stderr.

var rootCmd = &cobra.Command{
	Use:   "lfwrecord",
	Short: "Convert labelled face images to TFRecord shards",
	Long: "Converts the images in --input_path, with full-frame, list or ellipse annotations, into\n" +
			"lfw_train.record or lfw_test.record shards and a label map in --output_path.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := lfwrecord.LoadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		return convert(cmd.Context(), cfg)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <shard>...",
	Short: "Print a summary of the records in TFRecord shards",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := inspect(path); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	lfwrecord.RegisterFlags(rootCmd.Flags())
	rootCmd.Flags().BoolVar(&showProgress, "progress", false, "Draw a progress bar on stderr")

	// Logging flags, e.g. -v and -logtostderr.
	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(inspectCmd)
}

func convert(ctx context.Context, cfg lfwrecord.Config) error {
	klog.Infof("Output path: %s Input path: %s", cfg.OutputPath, cfg.InputPath)

	var opts []lfwrecord.Option
	if showProgress {
		var bar *progressbar.ProgressBar
		var barSplit string
		opts = append(opts, lfwrecord.WithProgress(func(split string, done, total int) {
			if bar == nil || split != barSplit {
				if bar != nil {
					_ = bar.Finish()
				}
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription(split),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
				)
				barSplit = split
			}
			_ = bar.Set(done)
		}))
		defer func() {
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(os.Stderr)
			}
		}()
	}

	a, err := lfwrecord.NewAssembler(cfg, opts...)
	if err != nil {
		return err
	}
	stats, err := a.Run(ctx)
	if err != nil {
		return err
	}

	for _, s := range stats.Splits {
		klog.Infof("Successfully wrote %d records (%d boxes) to %v", s.Records, s.Boxes, s.Shards)
	}
	klog.Infof("Wrote the label map to %s", stats.LabelMapPath)

	return nil
}

func inspect(path string) error {
	records, err := lfwrecord.ReadShard(path)
	if err != nil {
		return err
	}

	boxes := 0
	for _, r := range records {
		fmt.Printf("%s\t%s\t%dx%d\t%d bytes\t%d boxes\n", r.Filename, r.Format, r.Width, r.Height,
			len(r.Encoded), len(r.Boxes))
		for _, b := range r.Boxes {
			fmt.Printf("\t%s(%d) x=[%.4f, %.4f] y=[%.4f, %.4f]\n", b.ClassName, b.ClassLabel,
				b.XMin, b.XMax, b.YMin, b.YMax)
		}
		boxes += len(r.Boxes)
	}
	fmt.Printf("%s: %d records, %d boxes\n", path, len(records), boxes)

	return nil
}

func main() {
	defer klog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		klog.Flush()
		stop()
		klog.Exitf("Conversion failed: %v", err)
	}
}
