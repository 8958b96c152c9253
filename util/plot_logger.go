package util

import (
	"fmt"
	"io"
	"log"
	"os"
)

// PlotLogger receives one CSV line per training epoch. It discards output
// until InitPlotLogger is called.
var PlotLogger *log.Logger = log.New(io.Discard, "", 0)

var plotFile *os.File

// InitPlotLogger appends training history to fname, writing a header when
// the file is new.
func InitPlotLogger(fname string) error {
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open plot log %s: %w", fname, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat plot log %s: %w", fname, err)
	}

	plotFile = f
	PlotLogger = log.New(f, "", 0)
	if info.Size() == 0 {
		PlotLogger.Println("epoch,loss,accuracy,samples")
	}
	return nil
}

func PlotEpoch(epoch int, loss, accuracy float64, samples int) {
	PlotLogger.Printf("%d,%.6f,%.6f,%d", epoch, loss, accuracy, samples)
}

func ClosePlotLogger() error {
	PlotLogger = log.New(io.Discard, "", 0)
	if plotFile == nil {
		return nil
	}
	err := plotFile.Close()
	plotFile = nil
	return err
}
