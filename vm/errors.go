package vm

import "github.com/opnet-labs/opnetd/errkind"

var (
	errOutOfGas        = errkind.New(errkind.KindExecution, "OutOfGas", false, nil)
	errDepthExceeded   = errkind.New(errkind.KindExecution, "DepthExceeded", false, nil)
	errReceiptTooLarge = errkind.New(errkind.KindExecution, "ReceiptTooLarge", false, nil)
)
