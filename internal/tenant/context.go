package tenant

import (
	"github.com/gin-gonic/gin"
)

// HeaderTenantID is the request header naming the tenant on every data path.
const HeaderTenantID = "x-tenant-id"

// contextKey is the gin context key holding the resolved tenant state.
const contextKey = "tenant_state"

// SetOnGin stores the resolved tenant state for downstream handlers.
func SetOnGin(c *gin.Context, state *State) {
	c.Set(contextKey, state)
}

// FromGin returns the tenant state resolved by the tenant middleware.
func FromGin(c *gin.Context) (*State, bool) {
	value, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	state, ok := value.(*State)
	return state, ok
}
