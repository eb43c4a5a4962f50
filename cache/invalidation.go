package cache

import (
	"github.com/jacnel/fasst/internal/telemetry"
	"github.com/jacnel/fasst/result"
	"github.com/jacnel/fasst/transport"
)

// HandleInvalidation dispatches a decoded cache-invalidation RPC request
// (§6) to the table registered for reqType. read_and_inval is unimplemented
// in the original source (Design Note 9(b)); rather than guess at its
// unspecified semantics, it is left as a documented NotSupported response.
func HandleInvalidation(registry *Registry, reqType uint8, req transport.CacheInvalidationRequest) result.Cache {
	switch req.ReqType {
	case transport.Invalidate:
		table := registry.Lookup(reqType)
		if table == nil {
			return result.NotFound
		}
		res := table.Invalidate(req.CallerID, req.Keyhash)
		telemetry.CacheEvictionsTotal.WithLabelValues("invalidate_rpc").Inc()
		return res
	case transport.ReadAndInval:
		return result.NotSupported
	default:
		return result.NotSupported
	}
}
