// Package main builds the mobile shared library (libstoresync.so on Android,
// a static framework on iOS). Every exported function uses the C calling
// convention. Strings returned to the host are JSON and must be released with
// FreeString. A NULL return or non-zero status means failure; the message is
// available from GetLastError.
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"sync"
	"unsafe"

	"github.com/kimhsiao/storesync/backend/internal/bridge"
)

var (
	lastErr string
	lastMu  sync.RWMutex
)

func setLastError(err error) {
	lastMu.Lock()
	defer lastMu.Unlock()
	if err == nil {
		lastErr = ""
		return
	}
	lastErr = err.Error()
}

// result converts a bridge response into a C string, recording err.
func result(s string, err error) *C.char {
	setLastError(err)
	if err != nil {
		return nil
	}
	return C.CString(s)
}

func status(err error) C.int {
	setLastError(err)
	if err != nil {
		return 1
	}
	return 0
}

func cBool(b C.int) bool { return b != 0 }

//export Init
func Init(optionsJSON *C.char, online C.int) C.int {
	return status(bridge.Init(C.GoString(optionsJSON), cBool(online)))
}

//export Cleanup
func Cleanup() C.int {
	return status(bridge.Cleanup())
}

//export GetLastError
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return C.CString(lastErr)
}

//export FreeString
func FreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

//export SetOnline
func SetOnline(online C.int) C.int {
	return status(bridge.SetOnline(cBool(online)))
}

//export ForceSync
func ForceSync() *C.char {
	return result(bridge.ForceSync())
}

//export GetSyncStatus
func GetSyncStatus() *C.char {
	return result(bridge.GetSyncStatus())
}

//export QueueOperation
func QueueOperation(opJSON *C.char) *C.char {
	return result(bridge.QueueOperation(C.GoString(opJSON)))
}

//export VerifyDevice
func VerifyDevice(deviceID *C.char) *C.char {
	return result(bridge.VerifyDevice(C.GoString(deviceID)))
}

//export Login
func Login(deviceID, pin *C.char) *C.char {
	return result(bridge.Login(C.GoString(deviceID), C.GoString(pin)))
}

//export Logout
func Logout() C.int {
	return status(bridge.Logout())
}

//export GetProducts
func GetProducts() *C.char {
	return result(bridge.GetProducts())
}

//export CreateProduct
func CreateProduct(inputJSON *C.char) *C.char {
	return result(bridge.CreateProduct(C.GoString(inputJSON)))
}

//export UpdateProduct
func UpdateProduct(id, updateJSON *C.char) *C.char {
	return result(bridge.UpdateProduct(C.GoString(id), C.GoString(updateJSON)))
}

//export GetOrders
func GetOrders() *C.char {
	return result(bridge.GetOrders())
}

//export SubmitOrder
func SubmitOrder(inputJSON *C.char) *C.char {
	return result(bridge.SubmitOrder(C.GoString(inputJSON)))
}

func main() {
	// Required for c-shared build mode; not executed by the host.
}
