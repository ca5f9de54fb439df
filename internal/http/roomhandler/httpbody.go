package roomhandler

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
} // @name HealthResponse

type RoomPath struct {
	ID string `uri:"id" binding:"required,max=256"`
} // @name RoomPath
