//go:generate mockgen -source=../broker.go           -destination=./mock_broker.go           -package=mocks
//go:generate mockgen -source=../logger.go           -destination=./mock_logger.go           -package=mocks
//go:generate mockgen -source=../message_consumer.go -destination=./mock_message_consumer.go -package=mocks
//go:generate mockgen -source=../message_handler.go  -destination=./mock_message_handler.go  -package=mocks

package mocks
