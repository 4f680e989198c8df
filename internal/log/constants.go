package log

const (
	KeyAppName           = "app"
	KeyRequestID         = "requestId"
	KeyProcess           = "process"
	KeyTag               = "tag"
	KeyConfig            = "config"
	KeyToken             = "token"
	KeyUserID            = "userId"
	KeyItemID            = "itemId"
	KeyProductID         = "productId"
	KeyServiceID         = "serviceId"
	KeyQuantity          = "quantity"
	KeyCart              = "cart"
	KeyWishlist          = "wishlist"
	KeyGuestItems        = "guestItems"
	KeySyncMode          = "syncMode"
	KeyMigrationStatus   = "migrationStatus"
	KeyStoreBackend      = "storeBackend"
	KeyUpstreamOperation = "upstreamOperation"
	KeyRequest           = "request"
	KeyHeader            = "header"
	KeyBody              = "body"
	KeyRequestBody       = "requestBody"
	KeyRequestHeader     = "requestHeader"
	KeyRequestHost       = "host"
	KeyRequestIp         = "requesterIP"
	KeyRequestMethod     = "requestMethod"
	KeyRequestURI        = "requestURI"
	KeyRequestURL        = "requestURL"
	KeyTraceID           = "traceId"
	KeySpanID            = "spanId"
)
