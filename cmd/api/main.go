package main

// @title           Eco-Fin API
// @version         1.0
// @description     Labor recruitment profitability and SmartBill invoicing.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	Execute()
}
