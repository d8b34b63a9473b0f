package server

// HTMLPage is the single page shell for /login and /home. %s is the flavor.
// The script decides which view to render from the path.
const HTMLPage = `<!DOCTYPE html>
<html>
<head>
    <title>Login Fixture (%s)</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 420px;
            margin: 80px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        label { display: block; margin-top: 16px; color: #333; }
        input {
            width: 100%%;
            box-sizing: border-box;
            padding: 10px;
            margin-top: 6px;
            border: 1px solid #ccc;
            border-radius: 4px;
        }
        button {
            margin-top: 24px;
            width: 100%%;
            background: #4285f4;
            color: white;
            border: none;
            padding: 12px 24px;
            border-radius: 4px;
            cursor: pointer;
            font-size: 16px;
        }
        button:disabled { background: #ccc; cursor: not-allowed; }
        #login-error { color: #d93025; margin-top: 12px; min-height: 1em; }
    </style>
</head>
<body>
    <div class="container" id="app"></div>
    <script src="/static/app.js"></script>
</body>
</html>
`

// AppScript renders the login form, posts credentials to /api/login and
// swaps in the home view on success without a full page load.
const AppScript = `(function () {
  var app = document.getElementById('app');

  function renderHome() {
    app.innerHTML = '<main id="home"><h1>Welcome</h1><p>You are logged in.</p></main>';
  }

  function renderLogin() {
    app.innerHTML =
      '<h1>Sign in</h1>' +
      '<form id="login-form">' +
      '<label for="email-input">Email</label>' +
      '<input id="email-input" type="email" autocomplete="username">' +
      '<label for="password-input">Password</label>' +
      '<input id="password-input" type="password" autocomplete="current-password">' +
      '<button id="submit-btn" type="submit">Log in</button>' +
      '<div id="login-error"></div>' +
      '</form>';

    var form = document.getElementById('login-form');
    var button = document.getElementById('submit-btn');
    var errorBox = document.getElementById('login-error');

    form.addEventListener('submit', function (ev) {
      ev.preventDefault();
      button.disabled = true;
      errorBox.textContent = '';
      fetch('/api/login', {
        method: 'POST',
        headers: { 'Content-Type': 'application/json' },
        body: JSON.stringify({
          username: document.getElementById('email-input').value,
          password: document.getElementById('password-input').value
        })
      }).then(function (res) {
        return res.json().then(function (body) {
          if (!res.ok || !body.ok) {
            throw new Error(body.error || ('status ' + res.status));
          }
          history.pushState({}, '', '/home');
          renderHome();
        });
      }).catch(function (err) {
        errorBox.textContent = err.message;
        button.disabled = false;
      });
    });
  }

  if (location.pathname === '/home') {
    renderHome();
  } else {
    renderLogin();
  }
})();
`
