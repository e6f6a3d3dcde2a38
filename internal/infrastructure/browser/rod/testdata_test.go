package rod

const (
	BasicHTML = `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
	<h1>Hello World</h1>
	<p>First   paragraph</p>
</body>
</html>`

	FormHTML = `<!DOCTYPE html>
<html>
<head><title>Form</title></head>
<body>
	<form id="testForm" action="/done" method="get">
		<input id="username" type="text" name="username" value="old" />
		<input id="password" type="password" name="password" />
		<select id="color" name="color">
			<option>red</option>
			<option>blue</option>
		</select>
		<button id="submit" type="submit">Submit</button>
	</form>
</body>
</html>`

	InteractiveHTML = `<!DOCTYPE html>
<html>
<head><title>Interactive</title></head>
<body>
	<button id="btn">Click Me</button>
	<div id="result"></div>
	<script>
		document.getElementById('btn').addEventListener('click', function() {
			document.getElementById('result').textContent = 'Clicked!';
		});
	</script>
</body>
</html>`

	LinksHTML = `<!DOCTYPE html>
<html>
<head><title>Links</title></head>
<body>
	<nav id="nav">
		<a href="/page1">Page 1</a>
		<a href="/page2">Page 2</a>
	</nav>
	<a href="https://example.com/">External</a>
</body>
</html>`
)
