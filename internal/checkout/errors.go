package checkout

import "errors"

var ErrEmptyCart = errors.New("cart is empty")
var ErrLoginRequired = errors.New("login is required to place an order")
var ErrIncompleteAddress = errors.New("shipping address is incomplete")
