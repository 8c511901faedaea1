package output

import (
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
	"rsc.io/qr"
)

// RenderQR prints a half-block QR code for data when w is a terminal,
// and does nothing otherwise. Low error correction keeps address codes
// small enough for a standard 80-column window.
func RenderQR(w io.Writer, data string) error {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd fits in int on supported platforms
		return nil
	}

	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          qr.L,
		Writer:         w,
		QuietZone:      1,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
	return nil
}
