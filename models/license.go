package models

// licenseSKUs maps a license key to the directory SKU it assigns.
// Fixed for the process lifetime.
var licenseSKUs = map[string]string{
	"a1_teacher": "94763226-9b3c-4e75-a931-5c89701abe66", // A1 for faculty
	"a1_student": "314c4481-f395-4525-be8b-2ec4bb1e9d91", // A1 for students
	"a3_school":  "e578b273-6db4-4691-bba0-8d691f4da603", // A3 school tier
}

// LicenseSKU resolves a license key to its SKU identifier, reporting whether
// the key is recognized.
func LicenseSKU(key string) (string, bool) {
	sku, ok := licenseSKUs[key]
	return sku, ok
}
