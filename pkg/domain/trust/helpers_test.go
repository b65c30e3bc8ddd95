package trust_test

import (
	"crypto/x509/pkix"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
)

var fixedOrgID = uuid.MustParse("018f1e6a-7c2b-7c2b-8c2b-0123456789ab")

// testKdfParams keeps chain tests fast; the production floor is covered by
// the engine config's own validation tests.
func testKdfParams() seed.KdfParams {
	return seed.KdfParams{MemoryKiB: 1024, Iterations: 10, Parallelism: 4}
}

func pkixName(cn string) pkix.Name {
	return pkix.Name{CommonName: cn}
}

func rejectionKind(err error) (string, bool) {
	return common.RejectionKind(err)
}
