// Package domain contains the wire contract shared by the host and the embedded app.
package domain

// Method identifies a request handler. The set is closed: only the constants
// below are dispatchable.
type Method string

const (
	MethodGetTxBySafeTxHash        Method = "getTxBySafeTxHash"
	MethodGetSafeInfo              Method = "getSafeInfo"
	MethodGetChainInfo             Method = "getChainInfo"
	MethodGetSafeBalances          Method = "getSafeBalances"
	MethodRPCCall                  Method = "rpcCall"
	MethodSendTransactions         Method = "sendTransactions"
	MethodSignMessage              Method = "signMessage"
	MethodSignTypedMessage         Method = "signTypedMessage"
	MethodGetEnvironmentInfo       Method = "getEnvironmentInfo"
	MethodGetOffChainSignature     Method = "getOffChainSignature"
	MethodRequestAddressBook       Method = "requestAddressBook"
	MethodWalletGetPermissions     Method = "wallet_getPermissions"
	MethodWalletRequestPermissions Method = "wallet_requestPermissions"
)

// MethodGetEnvInfo is the legacy key that bootstrap probes are dispatched under.
// It is not part of the wire method set.
const MethodGetEnvInfo Method = "getEnvInfo"

var knownMethods = map[Method]struct{}{
	MethodGetTxBySafeTxHash:        {},
	MethodGetSafeInfo:              {},
	MethodGetChainInfo:             {},
	MethodGetSafeBalances:          {},
	MethodRPCCall:                  {},
	MethodSendTransactions:         {},
	MethodSignMessage:              {},
	MethodSignTypedMessage:         {},
	MethodGetEnvironmentInfo:       {},
	MethodGetOffChainSignature:     {},
	MethodRequestAddressBook:       {},
	MethodWalletGetPermissions:     {},
	MethodWalletRequestPermissions: {},
}

// Known reports whether m belongs to the wire method set.
func (m Method) Known() bool {
	_, ok := knownMethods[m]
	return ok
}

// Valid reports whether m may key a handler: a known method or a legacy key.
func (m Method) Valid() bool {
	return m.Known() || m == MethodGetEnvInfo
}

func (m Method) String() string { return string(m) }

// ParseMethod maps a wire string onto the method set.
func ParseMethod(s string) (Method, bool) {
	m := Method(s)
	if !m.Valid() {
		return "", false
	}
	return m, true
}

// KnownMethods returns the wire method set in declaration order.
func KnownMethods() []Method {
	return []Method{
		MethodGetTxBySafeTxHash,
		MethodGetSafeInfo,
		MethodGetChainInfo,
		MethodGetSafeBalances,
		MethodRPCCall,
		MethodSendTransactions,
		MethodSignMessage,
		MethodSignTypedMessage,
		MethodGetEnvironmentInfo,
		MethodGetOffChainSignature,
		MethodRequestAddressBook,
		MethodWalletGetPermissions,
		MethodWalletRequestPermissions,
	}
}
