package usercontext

// Locals keys shared between middlewares and controllers
const (
	KeyOwnerID  = "owner_id"
	KeyInternal = "internal_caller"
	keyContext  = "OWNER_CONTEXT"
)
